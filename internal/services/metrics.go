package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Email change outcomes.
const (
	outcomeRequested   = "requested"
	outcomeInvalidCode = "invalid_code"
	outcomeLockedOut   = "locked_out"
	outcomeVerified    = "verified"
	outcomeExpired     = "expired"
)

type serviceMetrics struct {
	emailChange *prometheus.CounterVec
	logins      *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *serviceMetrics {
	return &serviceMetrics{
		emailChange: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ricauth",
			Name:      "email_change_total",
			Help:      "Email change requests by outcome.",
		}, []string{"outcome"}),
		logins: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ricauth",
			Name:      "login_total",
			Help:      "Token obtain attempts by result.",
		}, []string{"result"}),
	}
})

func getMetrics() *serviceMetrics {
	return metricsSingleton()
}
