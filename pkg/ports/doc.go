/*
Package ports defines the driven ports (interfaces) of the flow engine.

These interfaces decouple the runtime from storage, transport and the
external services node executors talk to, so each can be swapped for a
memory, Redis, SQL or HTTP implementation.

# Key Interfaces

  - FlowRepository / FlowStore: Read and manage a bot's flows.
  - SessionStore: Persists conversation sessions.
  - DistributedLocker: Serializes steps for one session across replicas.
  - WebhookClient, ToxicityClassifier: Outbound HTTP used by webhook and condition nodes.
  - ChatAdmin, Mailer, OwnerNotifier, EventSink: Side-effect sinks for action nodes.
*/
package ports
