// Floodgate is a rate-limiting HTTP gateway.
//
// It sits in front of an upstream service and admits requests through a set
// of configured policies, providing:
//   - Token bucket, fixed window, sliding window, and concurrency limits
//   - Per-client partitioning by IP, header, or path
//   - Standard X-RateLimit-* and Retry-After response headers
//   - Prometheus metrics and periodic statistics snapshots
//   - Config hot reload without dropping traffic
//
// Usage:
//
//	# Start the gateway with default configuration
//	floodgate run
//
//	# Start with a custom configuration file
//	floodgate run --config /path/to/floodgate.yaml
//
//	# Validate a configuration file
//	floodgate validate --config /path/to/floodgate.yaml
//
//	# Show version information
//	floodgate version
package main

func main() {
	Execute()
}
