package models

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// Plan is the subscription tier that bounds how many new interviews an owner may start per day.
type Plan string

const (
	PlanGuest Plan = "guest"
	PlanFree  Plan = "free"
	PlanPro   Plan = "pro"
)

// Owner is whoever a session belongs to: an authenticated user or an anonymous practice visitor.
type Owner struct {
	ID        string
	Anonymous bool
	Role      UserRole
	Plan      Plan
}

// ResumeProfile is the stored output of the resume parser for one user.
type ResumeProfile struct {
	UserID       string   `json:"user_id"`
	Skills       []string `json:"skills"`
	Technologies []string `json:"technologies"`
}
