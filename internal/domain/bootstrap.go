package domain

import "time"

// PerformanceRecord acumula las métricas mensuales de un usuario.
type PerformanceRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Month        int       `json:"month"`
	Year         int       `json:"year"`
	LoansClosed  int       `json:"loans_closed"`
	VolumeClosed float64   `json:"volume_closed"`
	Applications int       `json:"applications"`
	CreatedAt    time.Time `json:"created_at"`
}

type BadgeAssignment struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

type Task struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`   // "pending", "completed"
	Priority  string    `json:"priority"` // "low", "medium", "high"
	DueDate   time.Time `json:"due_date"`
	CreatedAt time.Time `json:"created_at"`
}
