// Package ingest defines the core types and interfaces shared by the producer,
// consumer, queue, and storage subsystems of the ingestion pipeline.
package ingest
