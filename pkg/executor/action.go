package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/graph"
	"github.com/botaas/flowengine/pkg/interpolate"
	"github.com/botaas/flowengine/pkg/ports"
)

type actionExecutor struct {
	deps Dependencies
}

func (x *actionExecutor) Execute(ctx context.Context, ec *Context, node *graph.Node) (Outcome, error) {
	d := node.Data.(domain.ActionData)
	vars := ec.Session.Variables
	out := Outcome{OutputLabel: domain.LabelDone}

	switch d.ActionType {
	case domain.ActionSetVariable:
		value := interpolate.String(d.VariableValue, vars)
		vars[d.VariableName] = value
		out.effect(node.ID, domain.EffectSetVariable, nil, d.VariableName)

	case domain.ActionSendEmail:
		var err error
		if x.deps.Mailer == nil {
			err = errors.New("mailer not configured")
		} else {
			err = x.deps.Mailer.Send(ctx, ports.Email{
				BotID:   ec.Session.BotID,
				To:      interpolate.String(d.EmailTo, vars),
				Subject: interpolate.String(d.EmailSubject, vars),
				Body:    interpolate.String(d.EmailBody, vars),
			})
		}
		out.effect(node.ID, domain.EffectSendEmail, err, "")

	case domain.ActionLogEvent:
		name := interpolate.String(d.EventName, vars)
		if name == "" {
			name = node.ID
		}
		var err error
		if x.deps.Events == nil {
			err = errors.New("event sink not configured")
		} else {
			err = x.deps.Events.Record(ctx, ports.Event{
				BotID:     ec.Session.BotID,
				FlowID:    ec.Session.FlowID,
				SessionID: ec.Session.ID,
				UserID:    ec.Session.UserID,
				NodeID:    node.ID,
				Name:      name,
				Data:      interpolate.Map(d.EventData, vars),
				At:        ec.Now,
			})
		}
		out.effect(node.ID, domain.EffectLogEvent, err, name)

	case domain.ActionNotifyOwner:
		var err error
		if x.deps.Notifier == nil {
			err = errors.New("owner notifier not configured")
		} else {
			err = x.deps.Notifier.NotifyOwner(ctx, ec.Session.BotID, interpolate.String(d.Message, vars))
		}
		out.effect(node.ID, domain.EffectNotifyOwner, err, "")

	case domain.ActionBanChatMember:
		until := BanUntil(ec.Now, d.DurationValue, d.DurationUnit)
		detail := "permanent"
		if !until.IsZero() {
			detail = "until " + until.UTC().Format("2006-01-02T15:04:05Z")
		}
		var err error
		switch {
		case x.deps.Admin == nil:
			err = errors.New("chat admin not configured")
		case ec.Inbound.ChatID == "":
			err = errors.New("no chat to ban from")
		default:
			err = x.deps.Admin.BanChatMember(ctx, ports.BanRequest{
				BotID:          ec.Session.BotID,
				ChatID:         ec.Inbound.ChatID,
				UserID:         ec.Session.UserID,
				Until:          until,
				RevokeMessages: d.RevokeMessages,
			})
		}
		out.effect(node.ID, domain.EffectBanChatMember, err, detail)

	case domain.ActionDeleteMessage:
		target := interpolate.String(d.MessageID, vars)
		if target == "" {
			target = ec.Inbound.MessageID
		}
		var err error
		switch {
		case x.deps.Admin == nil:
			err = errors.New("chat admin not configured")
		case target == "" || ec.Inbound.ChatID == "":
			err = errors.New("no message to delete")
		default:
			err = x.deps.Admin.DeleteMessage(ctx, ec.Session.BotID, ec.Inbound.ChatID, target)
		}
		out.effect(node.ID, domain.EffectDeleteMessage, err, target)

	default:
		return out, &domain.ConfigurationError{NodeID: node.ID, Reason: fmt.Sprintf("unknown action type %q", d.ActionType)}
	}

	return out, nil
}
