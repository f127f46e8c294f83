package replay

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/bundle"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// InvariantResult is one invariant check outcome, recorded in replay and
// compare reports.
type InvariantResult struct {
	Name   string
	OK     bool
	Detail string
}

// runInvariants evaluates the built-in invariants and, when scriptPath is
// non-empty, a user-supplied starlark script. The script must define
// check(fills, positions) returning a list of violation strings.
func runInvariants(events []bundle.Event, out *Outputs, scriptPath string) ([]InvariantResult, error) {
	results := builtinInvariants(events, out)
	if scriptPath == "" {
		return results, nil
	}
	scripted, err := runScript(scriptPath, out)
	if err != nil {
		return results, err
	}
	return append(results, scripted...), nil
}

func builtinInvariants(events []bundle.Event, out *Outputs) []InvariantResult {
	var results []InvariantResult
	record := func(name string, ok bool, detail string) {
		if ok {
			detail = ""
		}
		results = append(results, InvariantResult{Name: name, OK: ok, Detail: detail})
	}

	// Every order_fill event produced exactly one fill.
	fillEvents := 0
	for i := range events {
		if events[i].EventType == bundle.EventOrderFill {
			fillEvents++
		}
	}
	record("fills_match_fill_events", fillEvents == len(out.Fills),
		fmt.Sprintf("%d fill events, %d derived fills", fillEvents, len(out.Fills)))

	// Fills reference orders accepted earlier in the stream, and no fill
	// lands after its order was canceled.
	accepted := make(map[string]bool)
	canceled := make(map[string]bool)
	orphans := 0
	late := 0
	for i := range events {
		e := &events[i]
		orderID, _ := e.PayloadString("order_id")
		switch e.EventType {
		case bundle.EventOrderAccepted:
			accepted[orderID] = true
		case bundle.EventOrderCanceled:
			canceled[orderID] = true
		case bundle.EventOrderFill:
			if !accepted[orderID] {
				orphans++
			}
			if canceled[orderID] {
				late++
			}
		}
	}
	record("fills_reference_accepted_orders", orphans == 0,
		fmt.Sprintf("%d fills without a prior order_accepted", orphans))
	record("no_fill_after_cancel", late == 0,
		fmt.Sprintf("%d fills after order_canceled", late))

	// Positions re-derived from the fill list alone agree with the fold.
	record("positions_consistent_with_fills", positionsAgree(out),
		"positions do not match aggregation of the derived fills")

	return results
}

// positionsAgree recomputes positions from out.Fills and compares against
// out.Positions, giving an independent check on the fold's aggregation.
func positionsAgree(out *Outputs) bool {
	net := make(map[string]decimal)
	notional := make(map[string]decimal)
	for _, f := range out.Fills {
		qty, err := parseDecimal(f.Qty)
		if err != nil {
			return false
		}
		price, err := parseDecimal(f.Price)
		if err != nil {
			return false
		}
		if f.Side == sideSell {
			qty = qty.neg()
		}
		cur, ok := net[f.Symbol]
		if !ok {
			cur = zeroDecimal()
		}
		net[f.Symbol] = cur.add(qty)
		curN, ok := notional[f.Symbol]
		if !ok {
			curN = zeroDecimal()
		}
		notional[f.Symbol] = curN.add(qty.mul(price))
	}
	if len(net) != len(out.Positions) {
		return false
	}
	for _, p := range out.Positions {
		n, ok := net[p.Symbol]
		if !ok || n.String() != p.NetQty {
			return false
		}
		if notional[p.Symbol].String() != p.Notional {
			return false
		}
	}
	return true
}

func runScript(path string, out *Outputs) ([]InvariantResult, error) {
	thread := &starlark.Thread{Name: "invariants"}
	globals, err := starlark.ExecFile(thread, path, nil, nil)
	if err != nil {
		return nil, exitcode.Errorf(exitcode.Usage, "invariants script %s: %v", path, err)
	}
	checkFn, ok := globals["check"]
	if !ok {
		return nil, exitcode.Errorf(exitcode.Usage, "invariants script %s does not define check(fills, positions)", path)
	}

	fills := starlark.NewList(nil)
	for _, f := range out.Fills {
		d := starlark.NewDict(6)
		_ = d.SetKey(starlark.String("seq"), starlark.MakeInt64(f.Seq))
		_ = d.SetKey(starlark.String("order_id"), starlark.String(f.OrderID))
		_ = d.SetKey(starlark.String("symbol"), starlark.String(f.Symbol))
		_ = d.SetKey(starlark.String("side"), starlark.String(f.Side))
		_ = d.SetKey(starlark.String("qty"), starlark.String(f.Qty))
		_ = d.SetKey(starlark.String("price"), starlark.String(f.Price))
		if err := fills.Append(d); err != nil {
			return nil, exitcode.Wrap(exitcode.Internal, err)
		}
	}
	positions := starlark.NewList(nil)
	for _, p := range out.Positions {
		d := starlark.NewDict(3)
		_ = d.SetKey(starlark.String("symbol"), starlark.String(p.Symbol))
		_ = d.SetKey(starlark.String("net_qty"), starlark.String(p.NetQty))
		_ = d.SetKey(starlark.String("notional"), starlark.String(p.Notional))
		if err := positions.Append(d); err != nil {
			return nil, exitcode.Wrap(exitcode.Internal, err)
		}
	}

	res, err := starlark.Call(thread, checkFn, starlark.Tuple{fills, positions}, nil)
	if err != nil {
		return nil, exitcode.Errorf(exitcode.Usage, "invariants script %s: check failed: %v", path, err)
	}

	violations, ok := res.(*starlark.List)
	if !ok {
		return nil, exitcode.Errorf(exitcode.Usage,
			"invariants script %s: check must return a list of strings, got %s", path, res.Type())
	}
	var results []InvariantResult
	for i := 0; i < violations.Len(); i++ {
		msg, ok := starlark.AsString(violations.Index(i))
		if !ok {
			return nil, exitcode.Errorf(exitcode.Usage,
				"invariants script %s: check returned a non-string violation", path)
		}
		results = append(results, InvariantResult{Name: "script", OK: false, Detail: msg})
	}
	if len(results) == 0 {
		results = append(results, InvariantResult{Name: "script", OK: true})
	}
	return results, nil
}
