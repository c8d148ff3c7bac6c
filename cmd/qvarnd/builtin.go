package main

import "github.com/vaultit/qvarn-go/resourcetype"

// The listener, notification and resource_type resource types are built
// into the core itself rather than declared in QVARN_RESOURCE_TYPE_DIR:
// every deployment needs them regardless of which domain resource types it
// loads, exactly as the original ships notification_router.py's listener
// and notification prototypes baked into the router rather than as
// separate YAML files.

func listenerResourceType() (*resourcetype.ResourceType, error) {
	return resourcetype.FromSpec(resourcetype.Spec{
		Type: "listener",
		Path: "/listeners",
		Versions: []resourcetype.Version{
			{
				Version: "v1",
				Prototype: map[string]interface{}{
					"type":           "listener",
					"id":             "",
					"revision":       "",
					"notify_of_new":  false,
					"listen_on_all":  false,
					"listen_on_type": "",
					"listen_on":      []interface{}{},
				},
			},
		},
	})
}

func notificationResourceType() (*resourcetype.ResourceType, error) {
	return resourcetype.FromSpec(resourcetype.Spec{
		Type: "notification",
		Path: "/notifications",
		Versions: []resourcetype.Version{
			{
				Version: "v1",
				Prototype: map[string]interface{}{
					"type":              "notification",
					"id":                "",
					"revision":          "",
					"listener_id":       "",
					"resource_id":       "",
					"resource_revision": "",
					"resource_change":   "",
					"timestamp":         "",
				},
			},
		},
	})
}

func resourceTypeResourceType() (*resourcetype.ResourceType, error) {
	return resourcetype.FromSpec(resourcetype.Spec{
		Type: "resource_type",
		Path: "/resource_types",
		Versions: []resourcetype.Version{
			{
				Version: "v1",
				Prototype: map[string]interface{}{
					"type":     "resource_type",
					"id":       "",
					"revision": "",
					"path":     "",
				},
			},
		},
	})
}
