// Package queue provides the in-memory work queues behind each pipeline
// domain: FIFO queues for import, regeneration, and cover fetching, and a
// priority queue for lyrics. Both variants enforce at most one pending item
// per target.
package queue
