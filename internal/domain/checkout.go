package domain

type AdjustmentState string

const (
	AdjustmentPending AdjustmentState = "pending"
	AdjustmentApplied AdjustmentState = "applied"
	AdjustmentFailed  AdjustmentState = "failed"
)

// AdjustmentPath records which store primitive produced the outcome.
type AdjustmentPath string

const (
	PathAtomic   AdjustmentPath = "atomic"
	PathFallback AdjustmentPath = "fallback"
)

// StockOutcome is the terminal state of one per-product stock adjustment.
type StockOutcome struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	State     AdjustmentState `json:"state"`
	Path      AdjustmentPath  `json:"path"`
	NewStock  int64           `json:"new_stock,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Err       error           `json:"-"`
}

func Applied(productID string, quantity, newStock int64, path AdjustmentPath) StockOutcome {
	return StockOutcome{
		ProductID: productID,
		Quantity:  quantity,
		State:     AdjustmentApplied,
		Path:      path,
		NewStock:  newStock,
	}
}

func Failed(productID string, quantity int64, path AdjustmentPath, err error) StockOutcome {
	return StockOutcome{
		ProductID: productID,
		Quantity:  quantity,
		State:     AdjustmentFailed,
		Path:      path,
		Reason:    err.Error(),
		Err:       err,
	}
}

func (o StockOutcome) IsApplied() bool {
	return o.State == AdjustmentApplied
}

// CheckoutResult pairs the consolidated demand with one outcome per demanded product.
type CheckoutResult struct {
	Demand   ConsolidatedDemand      `json:"demand"`
	Outcomes map[string]StockOutcome `json:"outcomes"`
}

func NewCheckoutResult(demand ConsolidatedDemand, outcomes []StockOutcome) CheckoutResult {
	byID := make(map[string]StockOutcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.ProductID] = o
	}

	return CheckoutResult{Demand: demand, Outcomes: byID}
}

// Succeeded is the AND over every demanded product. A product with no recorded
// outcome counts as a failure, and an empty demand never succeeds.
func (r CheckoutResult) Succeeded() bool {
	if len(r.Demand) == 0 {
		return false
	}

	for id := range r.Demand {
		o, ok := r.Outcomes[id]
		if !ok || !o.IsApplied() {
			return false
		}
	}
	return true
}

// Failures lists every non-applied outcome ordered by product id.
func (r CheckoutResult) Failures() []StockOutcome {
	var failed []StockOutcome
	for _, id := range r.Demand.ProductIDs() {
		o, ok := r.Outcomes[id]
		if !ok {
			o = StockOutcome{ProductID: id, Quantity: r.Demand[id], State: AdjustmentPending, Reason: "not attempted"}
		}
		if !o.IsApplied() {
			failed = append(failed, o)
		}
	}
	return failed
}

// AppliedOutcomes lists the adjustments that were durably applied, ordered by product id.
func (r CheckoutResult) AppliedOutcomes() []StockOutcome {
	var applied []StockOutcome
	for _, id := range r.Demand.ProductIDs() {
		if o, ok := r.Outcomes[id]; ok && o.IsApplied() {
			applied = append(applied, o)
		}
	}
	return applied
}
