// Package telemetry wires OpenTelemetry exporters and meters for the interception
// container.
//
// It centralises trace provider setup and records build, interception and
// behavior attachment metrics so operators can see which build keys are being
// proxied and how many behaviors each proxy carries.
package telemetry
