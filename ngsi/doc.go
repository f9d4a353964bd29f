// Package ngsi renders context update requests for the broker.
//
// The broker schema is chosen once, from the path of the configured broker
// URL, by ParseBrokerURL:
//
//	http://orion:1026/     legacy:  POST /ngsi10/updateContext
//	http://orion:1026/v1   v1:      POST /v1/updateContext
//	http://orion:1026/v2   v2:      POST /v2/entities/<id>/attrs?type=<type>&options=append
//
// The legacy and v1 schemas share the updateContext envelope, rendered as
// JSON or, when the parser asks for it, XML:
//
//	{"contextElements":[{"type":"host","isPattern":"false","id":"1",
//	  "attributes":[{"name":"cpuLoadPct","type":"string","value":"0.01"}]}],
//	 "updateAction":"APPEND"}
//
// The v2 schema takes a flat JSON object:
//
//	{"cpuLoadPct":{"value":"0.01"}}
//
// Attribute values always travel as strings.
package ngsi
