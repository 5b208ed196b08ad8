package services

import (
	"fmt"
	"sort"

	"github.com/lborres/opgate/core"
)

// BaseEndpoints lists the operator auth routes relative to the base path.
// Adapters pick their handler by OperationID.
func BaseEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:   "/login",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: core.OperationLogin,
				Description: "Log an operator in with email and password",
				RequestBody: core.LoginInput{},
				Responses: map[int]any{
					200: core.LoginResult{},
					400: core.ErrorResponse{},
					401: core.ErrorResponse{},
					500: core.ErrorResponse{},
				},
			},
		},
		{
			Path:   "/register",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: core.OperationRegister,
				Description: "Set the first password of a pre-authorized operator",
				RequestBody: core.RegisterInput{},
				Responses: map[int]any{
					200: core.RegisterResult{},
					400: core.ErrorResponse{},
					403: core.ErrorResponse{},
					500: core.ErrorResponse{},
				},
			},
		},
		{
			Path:   "/reset-password",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: core.OperationResetPassword,
				Description: "Request a reset link ({email}) or consume one ({email, token, newPassword})",
				RequestBody: core.ResetPasswordInput{},
				Responses: map[int]any{
					200: core.ResetPasswordResult{},
					400: core.ErrorResponse{},
					500: core.ErrorResponse{},
				},
			},
		},
	}
}

// EndpointRegistry holds the routes an HTTP adapter mounts, keyed by
// method and path so two operations can never claim the same route.
type EndpointRegistry struct {
	routes map[string]*core.Endpoint
}

// NewEndpointRegistry returns a registry holding BaseEndpoints.
func NewEndpointRegistry() *EndpointRegistry {
	r := &EndpointRegistry{routes: make(map[string]*core.Endpoint)}
	if err := r.Add(BaseEndpoints()...); err != nil {
		panic(err)
	}
	return r
}

func routeKey(ep core.Endpoint) string {
	return ep.Method + " " + ep.Path
}

// Add registers extra endpoints. The batch is rejected as a whole when any
// route is already taken or appears twice in it.
func (r *EndpointRegistry) Add(endpoints ...core.Endpoint) error {
	batch := make(map[string]*core.Endpoint, len(endpoints))
	for i := range endpoints {
		key := routeKey(endpoints[i])
		if _, taken := r.routes[key]; taken {
			return fmt.Errorf("endpoint %s already registered", key)
		}
		if _, dup := batch[key]; dup {
			return fmt.Errorf("endpoint %s listed twice", key)
		}
		ep := endpoints[i]
		batch[key] = &ep
	}

	for key, ep := range batch {
		r.routes[key] = ep
	}
	return nil
}

// Endpoints returns every registered endpoint ordered by path, then method.
func (r *EndpointRegistry) Endpoints() []*core.Endpoint {
	out := make([]*core.Endpoint, 0, len(r.routes))
	for _, ep := range r.routes {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Find returns the endpoint registered for operationID, or nil.
func (r *EndpointRegistry) Find(operationID string) *core.Endpoint {
	for _, ep := range r.routes {
		if ep.Metadata.OperationID == operationID {
			return ep
		}
	}
	return nil
}
