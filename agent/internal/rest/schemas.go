package rest

// nolint: lll
const signingRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"$id": "github.com/krancour/secureimage/v1/signingRequest.json",
	"title": "SigningRequest",
	"type": "object",
	"required": ["jobId", "platform", "originalFileName"],
	"additionalProperties": false,
	"properties": {
		"apiVersion": {
			"type": "string",
			"enum": ["github.com/krancour/secureimage/v1"]
		},
		"kind": {
			"type": "string",
			"enum": ["SigningRequest"]
		},
		"jobId": {
			"type": "string",
			"minLength": 1
		},
		"platform": {
			"type": "string",
			"enum": ["ios", "android"]
		},
		"originalFileName": {
			"type": "string",
			"description": "The object name of the artifact to sign",
			"minLength": 1
		},
		"originalFileEtag": {
			"type": "string"
		}
	}
}`

// nolint: lll
const deploymentRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"$id": "github.com/krancour/secureimage/v1/deploymentRequest.json",
	"title": "DeploymentRequest",
	"type": "object",
	"required": ["jobId", "platform", "deploymentPlatform", "originalFileName"],
	"additionalProperties": false,
	"properties": {
		"apiVersion": {
			"type": "string",
			"enum": ["github.com/krancour/secureimage/v1"]
		},
		"kind": {
			"type": "string",
			"enum": ["DeploymentRequest"]
		},
		"jobId": {
			"type": "string",
			"minLength": 1
		},
		"platform": {
			"type": "string",
			"enum": ["ios", "android"]
		},
		"deploymentPlatform": {
			"type": "string",
			"enum": ["public", "enterprise"]
		},
		"originalFileName": {
			"type": "string",
			"description": "The object name of the signed artifact to deploy",
			"minLength": 1
		},
		"originalFileEtag": {
			"type": "string"
		},
		"projectId": {
			"type": "string"
		},
		"organizationGroupId": {
			"type": "string",
			"description": "The MDM organization group enterprise deployments are routed to"
		},
		"displayName": {
			"type": "string",
			"description": "The application name shown by the MDM"
		}
	}
}`
