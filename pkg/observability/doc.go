/*
Package observability turns engine lifecycle hooks into logs and Prometheus
metrics.

Hooks from several sources are merged with Combine:

	hooks := observability.Combine(
		observability.LogHooks(logger),
		metrics.Hooks(),
	)
	eng := flowengine.New(flows, sessions, flowengine.WithLifecycleHooks(hooks))
*/
package observability
