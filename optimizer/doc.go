// Package optimizer samples process resource utilization on an independent
// timer and publishes the latest sample atomically, so scheduling decisions
// can consult current load without ever blocking on the sampler.
package optimizer
