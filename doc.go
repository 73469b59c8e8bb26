/*
Package flowengine executes the conversation flows authored in the botaas bot
builder.

A flow is a graph of typed nodes (start, message, condition, action, webhook,
input, end) joined by labeled edges. For every inbound chat message the engine
loads the user's session, walks the graph from the node the session waits at
until it reaches the next node that needs a reply (or the end), and persists
the new position. Along the way it sends messages, evaluates conditions,
calls webhooks and performs moderation actions.

# Concept

Flows come from a ports.FlowRepository and sessions live in a
ports.SessionStore. Both have memory, SQLite, PostgreSQL and (for sessions)
Redis adapters under pkg/adapters. Side effects go through small
collaborator interfaces (webhooks, classifier, chat admin, mailer, owner
notifier, event sink) injected with options.

Steps for one session never overlap: the engine holds a per-session lock
for the whole load, execute, save cycle, and can add a distributed lock
for multi-replica deployments.

# Usage

	flows := memory.NewFlowStore(flow)
	eng := flowengine.New(flows, memory.NewStore(),
		flowengine.WithWebhookClient(webhook.New()),
		flowengine.WithLogger(logger),
	)

	res, err := eng.HandleInbound(ctx, domain.Inbound{
		BotID:  "42",
		UserID: "1001",
		ChatID: "1001",
		Text:   "hi",
	})
	if err != nil {
		return err
	}
	fmt.Println(res.BotResponse, res.QuickReplies)

Flows are validated when first used. Validate reports every problem of a
flow at once, so builders can check a flow before activating it.
*/
package flowengine
