package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rl1809/bloodbank/internal/core/domain"
)

var (
	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Subsystem: "requests",
		Name:      "transitions_total",
		Help:      "Status change attempts on blood requests broken down by target status and outcome.",
	}, []string{"target", "outcome"})

	unitsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Subsystem: "inventory",
		Name:      "units_issued_total",
		Help:      "Blood units deducted from inventory by fulfilled requests.",
	}, []string{"blood_type"})

	lowStockAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Subsystem: "alerts",
		Name:      "low_stock_total",
		Help:      "Low stock alerts broken down by dispatch result.",
	}, []string{"result"})
)

func recordTransition(target domain.RequestStatus, err error) {
	statusTransitions.WithLabelValues(string(target), outcomeOf(err)).Inc()
}

func recordUnitsIssued(bloodType domain.BloodType, units int) {
	unitsIssued.WithLabelValues(string(bloodType)).Add(float64(units))
}

func recordLowStockAlert(result string) {
	lowStockAlerts.WithLabelValues(result).Inc()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInsufficientInventory):
		return "insufficient"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	}
	return "error"
}
