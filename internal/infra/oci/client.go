// Package oci talks to the cloud provider's REST API. The orchestrator
// only sees the impls.CloudProvider interface; everything
// provider-specific, including the error taxonomy, stays in here.
package oci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/qudata/control/internal/domain"
)

const (
	apiKeyHeader    = "X-API-Key"
	tenancyHeader   = "X-Tenancy-Id"
	applicationJSON = "application/json"
)

type Config struct {
	Endpoint  string
	APIKey    string
	TenancyID string
	Region    string
}

type Client struct {
	endpoint  string
	apiKey    string
	tenancyID string
	region    string
	http      *retryablehttp.Client
}

func NewClient(cfg Config) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.Logger = nil
	httpClient.RetryMax = 3
	// Provider 4xx responses are authoritative; retrying them only burns
	// quota. Network and 5xx failures keep the default policy.
	httpClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	return &Client{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		tenancyID: cfg.TenancyID,
		region:    cfg.Region,
		http:      httpClient,
	}
}

func (c *Client) CreateCompartment(ctx context.Context, name, description string) (*domain.Compartment, error) {
	body := map[string]string{"name": name, "description": description, "compartmentId": c.tenancyID}
	return doJSON[domain.Compartment](c, ctx, http.MethodPost, "/compartments", nil, body)
}

func (c *Client) GetCompartment(ctx context.Context, id string) (*domain.Compartment, error) {
	return doJSON[domain.Compartment](c, ctx, http.MethodGet, "/compartments/"+id, nil, nil)
}

func (c *Client) DeleteCompartment(ctx context.Context, id string) error {
	return c.doDelete(ctx, "/compartments/"+id)
}

func (c *Client) CreateVcn(ctx context.Context, compartmentID, name, cidr string) (*domain.Vcn, error) {
	body := map[string]string{"compartmentId": compartmentID, "displayName": name, "cidrBlock": cidr}
	return doJSON[domain.Vcn](c, ctx, http.MethodPost, "/vcns", nil, body)
}

func (c *Client) GetVcn(ctx context.Context, id string) (*domain.Vcn, error) {
	return doJSON[domain.Vcn](c, ctx, http.MethodGet, "/vcns/"+id, nil, nil)
}

func (c *Client) DeleteVcn(ctx context.Context, id string) error {
	return c.doDelete(ctx, "/vcns/"+id)
}

func (c *Client) ListVcns(ctx context.Context, compartmentID string) ([]domain.Vcn, error) {
	return doList[domain.Vcn](c, ctx, "/vcns", url.Values{"compartmentId": {compartmentID}})
}

func (c *Client) CreateInternetGateway(ctx context.Context, compartmentID, vcnID, name string) (*domain.Gateway, error) {
	body := map[string]any{"compartmentId": compartmentID, "vcnId": vcnID, "displayName": name, "isEnabled": true}
	return doJSON[domain.Gateway](c, ctx, http.MethodPost, "/internetGateways", nil, body)
}

func (c *Client) ListInternetGateways(ctx context.Context, compartmentID, vcnID string) ([]domain.Gateway, error) {
	return doList[domain.Gateway](c, ctx, "/internetGateways", url.Values{
		"compartmentId": {compartmentID},
		"vcnId":         {vcnID},
	})
}

func (c *Client) DeleteInternetGateway(ctx context.Context, id string) error {
	return c.doDelete(ctx, "/internetGateways/"+id)
}

func (c *Client) ListRouteTables(ctx context.Context, compartmentID, vcnID string) ([]domain.RouteTable, error) {
	return doList[domain.RouteTable](c, ctx, "/routeTables", url.Values{
		"compartmentId": {compartmentID},
		"vcnId":         {vcnID},
	})
}

func (c *Client) UpdateRouteTable(ctx context.Context, id string, rules []domain.RouteRule) error {
	body := map[string]any{"routeRules": rules}
	_, err := doJSON[domain.RouteTable](c, ctx, http.MethodPut, "/routeTables/"+id, nil, body)
	return err
}

func (c *Client) UpdateSecurityList(ctx context.Context, id string, ingress []domain.IngressRule) error {
	body := map[string]any{"ingressSecurityRules": ingress}
	_, err := doJSON[json.RawMessage](c, ctx, http.MethodPut, "/securityLists/"+id, nil, body)
	return err
}

func (c *Client) ListAvailabilityDomains(ctx context.Context, compartmentID string) ([]string, error) {
	type ad struct {
		Name string `json:"name"`
	}
	ads, err := doList[ad](c, ctx, "/availabilityDomains", url.Values{"compartmentId": {compartmentID}})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ads))
	for _, a := range ads {
		names = append(names, a.Name)
	}
	return names, nil
}

func (c *Client) CreateSubnet(ctx context.Context, compartmentID, vcnID, name, cidr, availabilityDomain string) (*domain.Subnet, error) {
	body := map[string]string{
		"compartmentId":      compartmentID,
		"vcnId":              vcnID,
		"displayName":        name,
		"cidrBlock":          cidr,
		"availabilityDomain": availabilityDomain,
	}
	return doJSON[domain.Subnet](c, ctx, http.MethodPost, "/subnets", nil, body)
}

func (c *Client) ListSubnets(ctx context.Context, compartmentID, vcnID string) ([]domain.Subnet, error) {
	return doList[domain.Subnet](c, ctx, "/subnets", url.Values{
		"compartmentId": {compartmentID},
		"vcnId":         {vcnID},
	})
}

func (c *Client) DeleteSubnet(ctx context.Context, id string) error {
	return c.doDelete(ctx, "/subnets/"+id)
}

func (c *Client) LaunchInstance(ctx context.Context, req domain.LaunchRequest) (*domain.ProviderInstance, error) {
	body := map[string]any{
		"compartmentId":      req.CompartmentID,
		"availabilityDomain": req.AvailabilityDomain,
		"displayName":        req.DisplayName,
		"shape":              req.Shape,
		"imageId":            req.ImageID,
		"subnetId":           req.SubnetID,
		"shapeConfig": map[string]int{
			"ocpus":       req.OCPUs,
			"memoryInGBs": req.MemoryGB,
		},
		"bootVolumeSizeInGBs": req.BootVolumeGB,
		"metadata": map[string]string{
			"ssh_authorized_keys": joinKeys(req.SSHAuthorizedKeys),
		},
	}
	return doJSON[domain.ProviderInstance](c, ctx, http.MethodPost, "/instances", nil, body)
}

func (c *Client) GetInstance(ctx context.Context, id string) (*domain.ProviderInstance, error) {
	return doJSON[domain.ProviderInstance](c, ctx, http.MethodGet, "/instances/"+id, nil, nil)
}

func (c *Client) ListInstances(ctx context.Context, compartmentID string) ([]domain.ProviderInstance, error) {
	return doList[domain.ProviderInstance](c, ctx, "/instances", url.Values{"compartmentId": {compartmentID}})
}

func (c *Client) InstanceAction(ctx context.Context, id string, action domain.ProviderAction) (*domain.ProviderInstance, error) {
	return doJSON[domain.ProviderInstance](c, ctx, http.MethodPost, "/instances/"+id, url.Values{"action": {string(action)}}, nil)
}

func (c *Client) TerminateInstance(ctx context.Context, id string) error {
	return c.doDelete(ctx, "/instances/"+id)
}

func (c *Client) GetInstanceAddresses(ctx context.Context, compartmentID, instanceID string) (string, string, error) {
	type vnic struct {
		PublicIP  string `json:"publicIp"`
		PrivateIP string `json:"privateIp"`
	}
	vnics, err := doList[vnic](c, ctx, "/vnicAttachments", url.Values{
		"compartmentId": {compartmentID},
		"instanceId":    {instanceID},
	})
	if err != nil {
		return "", "", err
	}
	if len(vnics) == 0 {
		return "", "", nil
	}
	return vnics[0].PublicIP, vnics[0].PrivateIP, nil
}

func (c *Client) GetImage(ctx context.Context, id string) (*domain.Image, error) {
	return doJSON[domain.Image](c, ctx, http.MethodGet, "/images/"+id, nil, nil)
}

func (c *Client) GetInstanceCredentials(ctx context.Context, instanceID string) (*domain.InstanceCredentials, error) {
	return doJSON[domain.InstanceCredentials](c, ctx, http.MethodGet, "/instances/"+instanceID+"/initialCredentials", nil, nil)
}

func joinKeys(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += "\n"
		}
		out += k
	}
	return out
}

func doJSON[T any](c *Client, ctx context.Context, method, path string, query url.Values, body any) (*T, error) {
	resp, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return &out, nil
}

func doList[T any](c *Client, ctx context.Context, path string, query url.Values) ([]T, error) {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out []T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode list %s response: %w", path, err)
	}
	return out, nil
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	target := c.endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequest(method, target, payload)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", applicationJSON)
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set(tenancyHeader, c.tenancyID)

	return c.http.Do(req)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var apiErr APIError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, &apiErr); err != nil {
		apiErr.Message = string(data)
	}
	apiErr.Status = resp.StatusCode
	return wrapClassified(&apiErr)
}
