// Package nodeclient is the request/response transport to individual room
// nodes.
//
// Endpoints, relative to the node's base URL:
//
//	GET /settings    identity probe, returns {"device_id": ...}
//	PUT /settings    {"ls":0|1}, {"hs":0|1}, {"mo":0|1}
//	PUT /schedule    {"schedule":[168 set-points]}
//	PUT /time_sync   {"day":0-6, "hour":0-23, "minute":0-59}, day 0 is Monday
//
// Every call is a single attempt with a hard timeout. The border router
// listing used for discovery is fetched with Neighbors.
package nodeclient
