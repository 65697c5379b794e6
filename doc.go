// Package zipstage runs processing stages that consume N independently
// arriving input streams and produce M output streams, one output cycle
// per aligned set of inputs.
//
// # Architecture
//
// A stage is built from a processing unit and hosted by a transport:
//
//	transport (NATS / MQTT)
//	    │  input subjects          control subjects
//	    ▼                              │
//	host.Binding ──── Chain ───► stage.Stage ◄── HandleEvent / HandleQuery / SetState
//	    ▲                          │   │
//	    │ Push / Announce          │   └── zipper.Zipper (one slot per input)
//	    └──────────────────────────┘
//	                               └── stage.Unit.Process (serialized)
//
// The packages, leaves first:
//
//   - endpoint: named input and output endpoints with dense indices and
//     their format descriptors
//   - caps: format descriptors, intersection and fixation
//   - zipper: the barrier that aligns one buffer per input into a tuple,
//     keeping the newest buffer of each slot
//   - protocol: lifecycle states, events, queries and flow returns
//   - stage: the lifecycle machine, protocol handler and dispatch engine
//   - processor/...: built-in processing units (identity, overlay)
//   - component, componentregistry: the type registry stages are created from
//   - host: binds a stage to publish/subscribe subjects
//   - natsclient, mqttclient: transports
//   - config: layered JSON/YAML/TOML configuration and live properties
//   - health, metric: health reporting and Prometheus metrics
//
// # Freshness over completeness
//
// A stage never blocks an input. When one producer runs ahead, the older
// buffers in its slot are discarded and only the newest takes part in the
// next tuple. Each discarded buffer is counted and reported as a drop.
//
// # Running
//
// The zipstage command loads a configuration, connects the transport and
// drives every configured stage to its target state:
//
//	zipstage run --config zipstage.yaml
//	zipstage validate -c base.yaml -c local.yaml
//	zipstage types --json
//
// Buffers published on <prefix>.<stage>.in.<input> are processed and the
// results published on <prefix>.<stage>.out.<output>. Events, queries and
// state requests arrive on <prefix>.<stage>.control.{event,query,state}.
package zipstage
