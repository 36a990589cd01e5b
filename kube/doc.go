// Package kube binds the gateway contracts to a Kubernetes cluster serving
// the devworkspace API. Clients are created per exchanged token through
// ClientFactory; the dynamic client carries every workspace document as
// unstructured content so callers see the full upstream payload.
package kube
