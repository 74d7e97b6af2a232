package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session agrupa los collectors del ciclo de vida de sesión. Un *Session nil es válido y no mide nada.
type Session struct {
	LoginAttempts   *prometheus.CounterVec
	Logouts         *prometheus.CounterVec
	Warnings        prometheus.Counter
	Extensions      prometheus.Counter
	ActiveMachines  prometheus.Gauge
	BootstrapErrors *prometheus.CounterVec
}

// New registra los collectors en reg (usar prometheus.NewRegistry() en tests).
func New(reg prometheus.Registerer) *Session {
	f := promauto.With(reg)
	return &Session{
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_dash_login_attempts_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		Logouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_dash_logouts_total",
			Help: "Logouts by reason",
		}, []string{"reason"}),
		Warnings: f.NewCounter(prometheus.CounterOpts{
			Name: "loan_dash_session_warnings_total",
			Help: "Inactivity warnings shown",
		}),
		Extensions: f.NewCounter(prometheus.CounterOpts{
			Name: "loan_dash_session_extensions_total",
			Help: "Sessions explicitly extended from the warning",
		}),
		ActiveMachines: f.NewGauge(prometheus.GaugeOpts{
			Name: "loan_dash_session_machines",
			Help: "Client session machines currently registered",
		}),
		BootstrapErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_dash_bootstrap_errors_total",
			Help: "Session bootstrap failures by stage",
		}, []string{"stage"}),
	}
}

func (m *Session) Login(result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

func (m *Session) Logout(reason string) {
	if m == nil {
		return
	}
	m.Logouts.WithLabelValues(reason).Inc()
}

func (m *Session) Warning() {
	if m == nil {
		return
	}
	m.Warnings.Inc()
}

func (m *Session) Extension() {
	if m == nil {
		return
	}
	m.Extensions.Inc()
}

func (m *Session) MachineAdded() {
	if m == nil {
		return
	}
	m.ActiveMachines.Inc()
}

func (m *Session) MachineRemoved() {
	if m == nil {
		return
	}
	m.ActiveMachines.Dec()
}

func (m *Session) BootstrapError(stage string) {
	if m == nil {
		return
	}
	m.BootstrapErrors.WithLabelValues(stage).Inc()
}
