// Package envclient holds the typed bindings to the remote research
// environment provisioning API. It is a pure translation layer: methods
// never interpret remote failures, they hand back the status and body
// for the orchestration layer to judge.
package envclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	imrocreq "github.com/imroc/req/v3"

	"github.com/upsidelab/physionet-build/pkg/entity"
	"github.com/upsidelab/physionet-build/pkg/metrics"
)

// Response is one remote answer. OK is derived from the HTTP status;
// a 4xx/5xx is a regular response here, not a Go error.
type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ErrorMessage digs the provider-supplied message out of the body. The
// remote API is inconsistent: some endpoints answer {"error": ...},
// others {"message": ...}. Both are normalized here so callers never
// have to know which endpoint uses which.
func (r *Response) ErrorMessage() string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return string(r.Body)
	}
	if body.Error != "" {
		return body.Error
	}
	if body.Message != "" {
		return body.Message
	}
	return string(r.Body)
}

func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

type CreateIdentityRequest struct {
	GCPUserID  string `json:"userid"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
}

type CreateWorkspaceRequest struct {
	GCPUserID        string        `json:"userid"`
	BillingAccountID string        `json:"billingid"`
	Region           entity.Region `json:"region"`
}

type CreateWorkbenchRequest struct {
	GCPUserID    string                 `json:"userid"`
	Region       entity.Region          `json:"region"`
	Type         entity.EnvironmentType `json:"type"`
	InstanceType entity.InstanceType    `json:"machinetype"`
	Group        string                 `json:"group-granting-data-access"`
	// Jupyter only; omitted for other environment types.
	BucketName     string `json:"bucketname,omitempty"`
	PersistentDisk int    `json:"persistentdisk,omitempty"`
	VMImage        string `json:"vmimage,omitempty"`
}

type WorkbenchRef struct {
	GCPUserID   string        `json:"userid"`
	Region      entity.Region `json:"region"`
	WorkbenchID string        `json:"workbenchid"`
}

type ChangeInstanceTypeRequest struct {
	WorkbenchRef
	InstanceType entity.InstanceType `json:"machinetype"`
}

// Client is one method per remote capability. Implementations perform
// real network I/O and no retries.
type Client interface {
	CreateIdentity(ctx context.Context, r *CreateIdentityRequest) (*Response, error)
	GetUserInfo(ctx context.Context, gcpUserID string) (*Response, error)
	CreateWorkspace(ctx context.Context, r *CreateWorkspaceRequest) (*Response, error)
	GetWorkspaceDetails(ctx context.Context, gcpUserID string, region entity.Region) (*Response, error)
	GetWorkspaceList(ctx context.Context, gcpUserID string) (*Response, error)
	CreateWorkbench(ctx context.Context, r *CreateWorkbenchRequest) (*Response, error)
	StopWorkbench(ctx context.Context, r *WorkbenchRef) (*Response, error)
	StartWorkbench(ctx context.Context, r *WorkbenchRef) (*Response, error)
	ChangeWorkbenchInstanceType(ctx context.Context, r *ChangeInstanceTypeRequest) (*Response, error)
	DeleteWorkbench(ctx context.Context, r *WorkbenchRef) (*Response, error)
	GetExecution(ctx context.Context, resourceName string) (*Response, error)
}

type client struct {
	req    *imrocreq.Client
	tokens *tokenSource
}

// New builds the production client against the configured API base URL.
func New(baseURL, audience, serviceAccountFile string, timeout time.Duration) (Client, error) {
	tokens, err := newTokenSource(serviceAccountFile, audience)
	if err != nil {
		return nil, err
	}
	return &client{
		req:    imrocreq.C().SetBaseURL(baseURL).SetTimeout(timeout),
		tokens: tokens,
	}, nil
}

func (c *client) request(ctx context.Context) (*imrocreq.Request, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}
	return c.req.R().SetContext(ctx).SetBearerAuthToken(token), nil
}

func (c *client) send(ctx context.Context, endpoint string, build func(*imrocreq.Request) (*imrocreq.Response, error)) (*Response, error) {
	r, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := build(r)
	if err != nil {
		metrics.RemoteCall(endpoint, "transport_error")
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	if resp.IsSuccessState() {
		metrics.RemoteCall(endpoint, "ok")
	} else {
		metrics.RemoteCall(endpoint, "remote_error")
	}
	return &Response{StatusCode: resp.StatusCode, Body: resp.Bytes()}, nil
}

func (c *client) CreateIdentity(ctx context.Context, r *CreateIdentityRequest) (*Response, error) {
	return c.send(ctx, "create_identity", func(req *imrocreq.Request) (*imrocreq.Response, error) {
		return req.SetBody(r).Post("/user")
	})
}

func (c *client) GetUserInfo(ctx context.Context, gcpUserID string) (*Response, error) {
	return c.send(ctx, "get_user_info", func(req *imrocreq.Request) (*imrocreq.Response, error) {
		return req.Get("/user/" + gcpUserID)
	})
}

func (c *client) CreateWorkspace(ctx context.Context, r *CreateWorkspaceRequest) (*Response, error) {
	return c.send(ctx, "create_workspace", func(req *imrocreq.Request) (*imrocreq.Response, error) {
		return req.SetBody(r).Post("/workspace")
	})
}

func (c *client) GetWorkspaceDetails(ctx context.Context, gcpUserID string, region entity.Region) (*Response, error) {
	return c.send(ctx, "get_workspace_details", func(req *imrocreq.Request) (*imrocreq.Response, error) {
		return req.Get(fmt.Sprintf("/workspace/%s/%s", gcpUserID, region))
	})
}

func (c *client) GetWorkspaceList(ctx context.Context, gcpUserID string) (*Response, error) {
	return c.send(ctx, "get_workspace_list", func(req *imrocreq.Request) (*imrocreq.Response, error) {
		return req.Get("/workspace/list/" + gcpUserID)
	})
}

func (c *client) CreateWorkbench(ctx context.Context, r *CreateWorkbenchRequest) (*Response, error) {
	return c.send(ctx, "create_workbench", func(req *imrocreq.Request) (*imrocreq.Response, error) {
		return req.SetBody(r).Post("/workbench")
	})
}

func (c *client) StopWorkbench(ctx context.Context, r *WorkbenchRef) (*Response, error) {
	return c.send(ctx, "stop_workbench", func(req *imrocreq.Request) (*imrocreq.Response, error) {
		return req.SetBody(r).Put("/workbench/stop")
	})
}

func (c *client) StartWorkbench(ctx context.Context, r *WorkbenchRef) (*Response, error) {
	return c.send(ctx, "start_workbench", func(req *imrocreq.Request) (*imrocreq.Response, error) {
		return req.SetBody(r).Put("/workbench/start")
	})
}

func (c *client) ChangeWorkbenchInstanceType(ctx context.Context, r *ChangeInstanceTypeRequest) (*Response, error) {
	return c.send(ctx, "update_workbench", func(req *imrocreq.Request) (*imrocreq.Response, error) {
		return req.SetBody(r).Put("/workbench/update")
	})
}

func (c *client) DeleteWorkbench(ctx context.Context, r *WorkbenchRef) (*Response, error) {
	return c.send(ctx, "delete_workbench", func(req *imrocreq.Request) (*imrocreq.Response, error) {
		return req.SetBody(r).Delete("/workbench")
	})
}

func (c *client) GetExecution(ctx context.Context, resourceName string) (*Response, error) {
	return c.send(ctx, "get_execution", func(req *imrocreq.Request) (*imrocreq.Response, error) {
		return req.Get("/execution/" + resourceName)
	})
}
