package rest

// nolint: lll
const jobStatusUpdateSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"$id": "github.com/krancour/secureimage/v1/jobStatusUpdate.json",
	"title": "JobStatusUpdate",
	"type": "object",
	"required": ["status"],
	"additionalProperties": false,
	"properties": {
		"apiVersion": {
			"type": "string",
			"enum": ["github.com/krancour/secureimage/v1"]
		},
		"kind": {
			"type": "string",
			"enum": ["JobStatusUpdate"]
		},
		"status": {
			"type": "string",
			"description": "The terminal status the job has reached",
			"enum": ["Completed", "Failed"]
		},
		"statusMessage": {
			"type": "string",
			"description": "A one line summary of why the job failed"
		},
		"deliveryFileName": {
			"type": "string",
			"description": "The object name of the artifact produced by the job"
		},
		"deliveryFileEtag": {
			"type": "string",
			"description": "The etag of the artifact produced by the job"
		}
	}
}`
