package model

const DefaultGoalColor = "#007bff"

type Goal struct {
	ID          int64  `json:"id"`
	OwnerID     int64  `json:"-"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StartDate   Date   `json:"start_date"`
	DueDate     Date   `json:"due_date"`
	Color       string `json:"color"`
}

type Milestone struct {
	ID        int64  `json:"id"`
	GoalID    int64  `json:"goal_id"`
	Title     string `json:"title"`
	DueDate   Date   `json:"due_date"`
	Completed bool   `json:"completed"`

	// GoalTitle is filled by range queries that join the parent goal.
	GoalTitle string `json:"goal_title,omitempty"`
}

type MilestoneTask struct {
	ID          int64  `json:"id"`
	MilestoneID int64  `json:"milestone_id"`
	Title       string `json:"title"`
	Completed   bool   `json:"completed"`
}
