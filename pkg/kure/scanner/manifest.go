package scanner

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// marshalManifest renders obj as YAML with managed fields stripped, mirroring
// k8sclient.SanitizeManifest's treatment of Pod manifests for every other
// watched kind. Callers must pass an already-deep-copied obj: informer cache
// objects are shared and must never be mutated in place.
func marshalManifest(obj metav1.Object) (string, error) {
	obj.SetManagedFields(nil)

	out, err := yaml.Marshal(obj)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
