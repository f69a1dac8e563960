package types

// IncidentStatusRequest is the body of PATCH /api/v1/incidents/:id.
// Resolution is automatic, so resolved is not accepted here.
type IncidentStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active acknowledged fixing"`
}
