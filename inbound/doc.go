// Package inbound serves the downstream duplex channel. A websocket session
// binds to one namespace at connect time, subscribes once the client sends a
// credential, and streams status transitions until either side closes.
package inbound
