// Package domain models crowd-sourced disaster reports and the incidents
// formed from them.
//
// # Data Source
//
// Reports are submitted by people on the ground, either one at a time or as
// an offline-accumulated batch synced when connectivity returns. The API
// layer publishes each sync batch as a single JSON message to the Kafka
// source topic:
//
//	{
//	  "batch_id": "b-20240426-0001",
//	  "reports": [
//	    {"latitude": 40.7128, "longitude": -74.0060,
//	     "title": "Flood in downtown area",
//	     "description": "Multiple buildings flooded, people trapped",
//	     "disaster_type": "flood", "needs": ["food", "water"], "priority": 5,
//	     "submitted_at": "2024-04-26T15:10:00Z"}
//	  ]
//	}
//
// # Ingestion Conventions
//
// Identifiers:
//
//	Reports without an "id" receive a random UUID at ingestion. Batches
//	without a "batch_id" receive one as well, and every report is stamped
//	with the batch id in SourceBatchID.
//
// Timestamps:
//
//	"submitted_at" is RFC 3339. A missing value falls back to the Kafka
//	message time, then to the service clock.
//
// Coordinates:
//
//	Decimal degrees, latitude -90..90, longitude -180..180. Reports outside
//	that range (or NaN) are kept but marked unclusterable: they are still
//	scored for authenticity and surfaced to the caller. See [ErrInvalidCoordinate].
//
// Batch size:
//
//	A batch carries at most MaxBatchReports reports (100 by default). Oversized
//	batches are rejected as a whole with [ErrBatchTooLarge].
//
// # Incidents
//
// An [Incident] is a de-duplicated event built from one or more reports that
// lie within the proximity radius of each other (50 m by default). Incident
// ids have the form "incident_<n>" and are handed out by a sequence owned by
// the caller's persisted [State], so they are never reused.
//
// Status is "unverified" until the incident's confidence (the highest member
// authenticity score seen so far) reaches the verification threshold and at
// least the minimum number of independent reports corroborate it. Once
// verified an incident stays verified unless a re-validation pass is
// explicitly requested.
package domain
