package engine

import (
	"stock-alerting/internal/models"
)

// Outcome is the result of testing one alert condition against one sample
type Outcome int

const (
	NotSatisfied Outcome = iota
	Satisfied
)

func (o Outcome) String() string {
	if o == Satisfied {
		return "satisfied"
	}
	return "not_satisfied"
}

// Evaluate tests an alert's condition against a price sample. Conditions use
// strict inequality: a close price exactly at the threshold satisfies
// neither direction.
func Evaluate(alert *models.Alert, sample *models.PriceSample) Outcome {
	if alert.ConditionMet(sample.ClosePrice()) {
		return Satisfied
	}
	return NotSatisfied
}
