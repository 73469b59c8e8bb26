/*
Package domain contains the core models of the flow engine.

It defines flows as authored in the bot builder, the typed node payloads
decoded from them, conversation sessions, and the results a step produces.
The package is kept free of I/O so that storage, transport and the
executors can share it without import cycles.

# Key Entities

  - Flow: A bot's directed graph of nodes and edges plus its initial variables.
  - NodeData: The typed payload of a node (start, message, condition, action, webhook, input, end).
  - Session: The per-user cursor into a flow together with its variables.
  - StepResult / ExecutionResult: What one inbound message produced.
*/
package domain
