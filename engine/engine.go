// Package engine exposes the reconciliation command bus: it receives UI
// intents as {method, args} envelopes, dispatches them to the session
// handlers, and emits the return command plus the observable state.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
	"github.com/aqlanhadi/rekon/engine/reconmodel"
	"github.com/aqlanhadi/rekon/engine/session"
)

// StatementSource resolves statement lines for mounting.
type StatementSource interface {
	StatementLine(ctx context.Context, id int64) (*common.StatementLine, error)
}

// AccountSource resolves accounts and partners referenced by line edits.
type AccountSource interface {
	Account(id int64) *common.Account
	Partner(id int64) *common.Partner
}

// Bus wires the session handlers to a statement-line source and the model
// registry. One Bus serves one session; callers must not interleave
// dispatches for the same session.
type Bus struct {
	Statements StatementSource
	Accounts   AccountSource
	Models     *reconmodel.Engine
	Deps       session.Deps
}

// Command is one UI intent.
type Command struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Return describes the side effects the caller must apply plus the
// observable session state after the intent.
type Return struct {
	Done               bool             `json:"done,omitempty"`
	ResetRecord        bool             `json:"reset_record,omitempty"`
	ResetGlobalInfo    bool             `json:"reset_global_info,omitempty"`
	Open               *common.Action   `json:"open,omitempty"`
	State              session.State    `json:"state"`
	Lines              []*session.Line  `json:"lines"`
	AutoReconcile      bool             `json:"auto_reconcile,omitempty"`
	UnableToDistribute bool             `json:"unable_to_distribute,omitempty"`
}

// Mount starts a session on a statement line.
func (b *Bus) Mount(ctx context.Context, stLineID int64) (*session.Session, *Return, error) {
	st, err := b.Statements.StatementLine(ctx, stLineID)
	if err != nil {
		return nil, nil, fmt.Errorf("statement line %d: %w", stLineID, err)
	}
	sess, err := session.New(st, b.Deps)
	if err != nil {
		return nil, nil, err
	}
	return sess, b.observe(sess, nil), nil
}

type amlArgs struct {
	AmlID        int64   `json:"aml_id,omitempty"`
	AmlIDs       []int64 `json:"aml_ids,omitempty"`
	AllowPartial *bool   `json:"allow_partial,omitempty"`
}

type lineArgs struct {
	Index     string          `json:"index"`
	Amount    decimal.Decimal `json:"amount,omitempty"`
	Name      string          `json:"name,omitempty"`
	AccountID int64           `json:"account_id,omitempty"`
	PartnerID int64           `json:"partner_id,omitempty"`
	TaxIDs    []int64         `json:"tax_ids,omitempty"`

	Analytic map[string]decimal.Decimal `json:"analytic_distribution,omitempty"`
}

type mountArgs struct {
	StLineID int64 `json:"st_line_id"`
}

type modelArgs struct {
	ModelID int64 `json:"model_id"`
}

type snapshotArgs struct {
	Lines []*session.Line `json:"lines"`
}

// Dispatch executes one intent against the session. Handlers are
// synchronous; on error the session is left in its pre-intent state.
func (b *Bus) Dispatch(ctx context.Context, sess *session.Session, cmd Command) (*Return, error) {
	switch cmd.Method {
	case "mount_st_line":
		var args mountArgs
		if err := decode(cmd.Args, &args); err != nil {
			return nil, err
		}
		st, err := b.Statements.StatementLine(ctx, args.StLineID)
		if err != nil {
			return nil, err
		}
		if err := sess.MountStLine(ctx, st); err != nil {
			return nil, err
		}
		return b.observe(sess, &Return{ResetRecord: true, ResetGlobalInfo: true}), nil

	case "restore_st_line_data":
		var args snapshotArgs
		if err := decode(cmd.Args, &args); err != nil {
			return nil, err
		}
		sess.RestoreSnapshot(args.Lines)
		return b.observe(sess, nil), nil

	case "add_new_aml", "add_new_amls":
		var args amlArgs
		if err := decode(cmd.Args, &args); err != nil {
			return nil, err
		}
		ids := args.AmlIDs
		if args.AmlID != 0 {
			ids = append(ids, args.AmlID)
		}
		allowPartial := true
		if args.AllowPartial != nil {
			allowPartial = *args.AllowPartial
		}
		if err := sess.AddNewAmls(ctx, ids, allowPartial); err != nil {
			return nil, err
		}
		return b.observe(sess, nil), nil

	case "remove_new_aml":
		var args amlArgs
		if err := decode(cmd.Args, &args); err != nil {
			return nil, err
		}
		if err := sess.RemoveNewAml(ctx, args.AmlID); err != nil {
			return nil, err
		}
		return b.observe(sess, nil), nil

	case "remove_line":
		var args lineArgs
		if err := decode(cmd.Args, &args); err != nil {
			return nil, err
		}
		if err := sess.RemoveLine(ctx, args.Index); err != nil {
			return nil, err
		}
		return b.observe(sess, nil), nil

	case "select_reconcile_model":
		var args modelArgs
		if err := decode(cmd.Args, &args); err != nil {
			return nil, err
		}
		model := b.Models.ModelByID(args.ModelID)
		if model == nil {
			return nil, fmt.Errorf("unknown reconcile model %d", args.ModelID)
		}
		action, err := sess.SelectReconcileModel(ctx, model)
		if err != nil {
			return nil, err
		}
		return b.observe(sess, &Return{Open: action}), nil

	case "line_changed":
		return b.lineChanged(ctx, sess, cmd.Args)

	case "apply_line_suggestion":
		var args lineArgs
		if err := decode(cmd.Args, &args); err != nil {
			return nil, err
		}
		if err := sess.ApplyLineSuggestion(ctx, args.Index); err != nil {
			return nil, err
		}
		return b.observe(sess, nil), nil

	case "validate":
		if err := sess.Validate(ctx, false); err != nil {
			return nil, err
		}
		return b.observe(sess, &Return{Done: true}), nil

	case "to_check":
		if err := sess.Validate(ctx, true); err != nil {
			return nil, err
		}
		return b.observe(sess, &Return{Done: true}), nil

	case "reset":
		action, err := sess.Reset(ctx)
		if err != nil {
			if action != nil {
				return b.observe(sess, &Return{Open: action}), err
			}
			return nil, err
		}
		return b.observe(sess, &Return{ResetRecord: true}), nil

	case "set_as_checked":
		if err := sess.SetAsChecked(ctx); err != nil {
			return nil, err
		}
		return b.observe(sess, &Return{Done: true}), nil

	default:
		return nil, fmt.Errorf("unknown method %q", cmd.Method)
	}
}

type fieldChange struct {
	Index string          `json:"index"`
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// lineChanged routes a per-field edit to the matching handler; the session
// applies the fixed recompute ordering afterwards.
func (b *Bus) lineChanged(ctx context.Context, sess *session.Session, raw json.RawMessage) (*Return, error) {
	var change fieldChange
	if err := decode(raw, &change); err != nil {
		return nil, err
	}
	var err error
	switch change.Field {
	case "amount_currency", "balance":
		var amount decimal.Decimal
		if err = decode(change.Value, &amount); err == nil {
			err = sess.SetLineAmount(ctx, change.Index, amount)
		}
	case "name":
		var name string
		if err = decode(change.Value, &name); err == nil {
			err = sess.SetLineName(ctx, change.Index, name)
		}
	case "account_id":
		var id int64
		if err = decode(change.Value, &id); err == nil {
			account := b.Accounts.Account(id)
			if account == nil {
				return nil, fmt.Errorf("unknown account %d", id)
			}
			err = sess.SetLineAccount(ctx, change.Index, account)
		}
	case "partner_id":
		var id int64
		if err = decode(change.Value, &id); err == nil {
			err = sess.SetLinePartner(ctx, change.Index, b.Accounts.Partner(id))
		}
	case "tax_ids":
		var ids []int64
		if err = decode(change.Value, &ids); err == nil {
			err = sess.SetLineTaxes(ctx, change.Index, ids)
		}
	case "analytic_distribution":
		var dist map[string]decimal.Decimal
		if err = decode(change.Value, &dist); err == nil {
			err = sess.SetLineAnalytic(ctx, change.Index, dist)
		}
	default:
		return nil, fmt.Errorf("unknown field %q", change.Field)
	}
	if err != nil {
		return nil, err
	}
	return b.observe(sess, nil), nil
}

func (b *Bus) observe(sess *session.Session, ret *Return) *Return {
	if ret == nil {
		ret = &Return{}
	}
	ret.State = sess.State()
	ret.Lines = sess.Lines()
	ret.AutoReconcile = sess.AutoReconcile()
	ret.UnableToDistribute = sess.UnableToDistribute()
	return ret
}

func decode(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return errors.New("missing arguments")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("bad arguments: %w", err)
	}
	return nil
}
