// Package examplecart is a reference reactor demonstrating the
// AddItem -> ItemAdded -> SendAdminEmail -> AdminEmailed reaction chain:
// one command handled by an actor, whose event triggers a reaction
// dispatching a second command, itself handled into a terminal event,
// all sharing one correlation id.
package examplecart

import (
	"context"
	"encoding/json"

	"go.eventlog.dev/core/internal/codec"
	"go.eventlog.dev/core/internal/reactor"
	"go.eventlog.dev/core/internal/store"
)

const (
	TypeAddItem        = "AddItem"
	TypeItemAdded       = "ItemAdded"
	TypeSendAdminEmail = "SendAdminEmail"
	TypeAdminEmailed    = "AdminEmailed"
)

// AddItem is the command payload.
type AddItem struct {
	ProductID string `json:"product_id"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// ItemAdded is the event AddItem folds into.
type ItemAdded struct {
	ProductID string `json:"product_id"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// SendAdminEmail is the reaction command ItemAdded triggers.
type SendAdminEmail struct {
	ProductID string `json:"product_id"`
}

// AdminEmailed is the terminal event.
type AdminEmailed struct {
	ProductID string `json:"product_id"`
}

// State accumulates items added to the cart; it's a projector-style fold
// used to compute a running total, not required for the command-handling
// path itself but exercised so Evolve has real work to do.
type State struct {
	Items []ItemAdded
	Total int64
}

// Cart is an actor-with-reaction: it handles AddItem, ItemAdded and
// SendAdminEmail in the same consumer group, one turn each, producing
// ItemAdded, then SendAdminEmail, then AdminEmailed.
type Cart struct {
	group string
}

func New(groupID string) *Cart { return &Cart{group: groupID} }

func (c *Cart) GroupID() string        { return c.group }
func (c *Cart) HandledTypes() []string { return []string{TypeAddItem, TypeItemAdded, TypeSendAdminEmail} }
func (c *Cart) NeedsHistory() bool     { return true }
func (c *Cart) InitialState() any      { return &State{} }

func (c *Cart) Evolve(state any, msg store.Message) any {
	s, _ := state.(*State)
	if s == nil {
		s = &State{}
	}
	if msg.Type == TypeItemAdded {
		var evt ItemAdded
		if err := codec.Unmarshal(msg.Payload, &evt); err == nil {
			s.Items = append(s.Items, evt)
			s.Total += evt.Price * int64(evt.Quantity)
		}
	}
	return s
}

func (c *Cart) Handle(ctx context.Context, msg store.Message, state any, history []store.Message, replaying bool) ([]reactor.Action, error) {
	switch msg.Type {
	case TypeAddItem:
		var cmd AddItem
		if err := codec.Unmarshal(msg.Payload, &cmd); err != nil {
			return nil, err
		}
		evt := ItemAdded{ProductID: cmd.ProductID, Price: cmd.Price, Quantity: cmd.Quantity}
		payload, err := json.Marshal(evt)
		if err != nil {
			return nil, err
		}
		return []reactor.Action{
			reactor.AppendNext{Messages: []store.NewMessage{{
				StreamID: msg.StreamID,
				Type:     TypeItemAdded,
				Payload:  payload,
			}}},
		}, nil

	case TypeItemAdded:
		if replaying {
			return nil, nil // suppress the reaction on replay (S6)
		}
		var evt ItemAdded
		if err := codec.Unmarshal(msg.Payload, &evt); err != nil {
			return nil, err
		}
		payload := codec.MustMarshal(SendAdminEmail{ProductID: evt.ProductID})
		return []reactor.Action{
			reactor.AppendAfter{Messages: []store.NewMessage{{
				StreamID: msg.StreamID,
				Type:     TypeSendAdminEmail,
				Payload:  payload,
			}}},
		}, nil

	case TypeSendAdminEmail:
		if replaying {
			return nil, nil
		}
		var cmd SendAdminEmail
		if err := codec.Unmarshal(msg.Payload, &cmd); err != nil {
			return nil, err
		}
		payload := codec.MustMarshal(AdminEmailed{ProductID: cmd.ProductID})
		return []reactor.Action{
			reactor.AppendNext{Messages: []store.NewMessage{{
				StreamID: msg.StreamID,
				Type:     TypeAdminEmailed,
				Payload:  payload,
			}}},
		}, nil
	}
	return nil, nil
}

// OnException applies the spec's default strategy: stop the group and
// surface the error for an operator to investigate.
func (c *Cart) OnException(err error, msg store.Message, groupID string) reactor.ExceptionDecision {
	return reactor.StopWith(err.Error())
}
