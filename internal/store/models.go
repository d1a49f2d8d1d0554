package store

// Client is a customer company owned by one user.
type Client struct {
	ID          int64  `json:"id"`
	CompanyName string `json:"company_name"`
	Alias       string `json:"alias,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Stage       string `json:"stage"`
	Website     string `json:"website,omitempty"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type Contact struct {
	ID       int64  `json:"id"`
	ClientID int64  `json:"client_id"`
	Name     string `json:"contact_name"`
	Phone    string `json:"contact_phone,omitempty"`
	Email    string `json:"contact_email,omitempty"`
	Position string `json:"contact_position,omitempty"`
}

type Activity struct {
	ID           int64  `json:"id"`
	ClientID     int64  `json:"client_id"`
	ActivityType string `json:"activity_type"`
	Content      string `json:"content"`
	ActivityDate string `json:"activity_date,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type Schedule struct {
	ID           int64  `json:"id"`
	ClientID     int64  `json:"client_id,omitempty"`
	Title        string `json:"title"`
	ScheduleType string `json:"schedule_type,omitempty"`
	StartAt      string `json:"start_at,omitempty"`
	EndAt        string `json:"end_at,omitempty"`
	Location     string `json:"location,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// ClientDetail is a client together with its contacts.
type ClientDetail struct {
	Client
	Contacts []Contact `json:"contacts"`
}
