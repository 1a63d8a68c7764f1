// Package api exposes the usage ledger over HTTP on a chi router.
//
// Routes:
//
//	GET  /v1/usage/{userID}                      remaining and granted allowance
//	POST /v1/usage/{userID}/check                {field, count}, always 200
//	POST /v1/usage/{userID}/consume              {field, count}, 402 when over the limit
//	GET  /v1/notifications/{userID}              newest first, ?unread=true&limit=N
//	POST /v1/admin/subscriptions/{userID}/reset  zero an expired subscription
//	POST /v1/billing/paddle/webhook              Paddle-Signature verified events
//	GET  /health/live, /health/ready, /metrics
//
// Every JSON body uses the {data, error} envelope. Error codes are the last
// segment of the domain error key, for example "trial_expired".
package api
