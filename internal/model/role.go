package model

// Role mirrors the 'roles' table.  Role names are unique and membership is a
// flat many-to-many with users through 'user_roles'.
type Role struct {
	ID   uint64 `json:"role_id"`
	Name string `json:"role_name"`
}
