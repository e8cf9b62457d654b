package workflow

import (
	"fmt"

	"github.com/flowdesk/flowdesk/internal/models"
)

// execLookup resolves a named endpoint into formatted business data. The
// lookups are answered from the in-process directory; the node emits the
// block and stops so the user sees the result on its own, remembering the
// configured next node for the following turn.
func (e *Engine) execLookup(node models.WorkflowNode, ec *models.ExecutionContext) (models.ExecResult, error) {
	loc, _ := e.dir.FindLocation(ec.SelectedLocation)
	var body string
	switch node.Content.Endpoint {
	case "procedures", "prices":
		if ec.LastPriceQuery != "" {
			if p, ok := e.dir.FindProcedureByName(ec.LastPriceQuery); ok {
				body = e.dir.ProcedureBlock(p, loc.ID)
				break
			}
		}
		body = e.dir.ProceduresBlock(loc.ID)
	case "insurances":
		body = e.dir.InsurancesBlock()
	case "location":
		body = e.dir.LocationBlock(loc)
	case "hours":
		body = e.dir.HoursBlock()
	default:
		return models.ExecResult{Stop: true}, fmt.Errorf("unknown lookup endpoint %q at %s", node.Content.Endpoint, node.ID)
	}

	ec.Logf("lookup " + node.Content.Endpoint)
	next, _ := e.next(node.ID, "main")
	return models.ExecResult{Response: body, NextNodeID: next, Stop: true}, nil
}
