package handlers

// LimitedResponse is the response for a request admitted by the rate limiter.
type LimitedResponse struct {
	Body struct {
		Message string `doc:"Outcome of the request" example:"Request allowed" json:"message"`
	}
}
