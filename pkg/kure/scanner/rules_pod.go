package scanner

import (
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

// EvaluatePod runs every Pod-kind rule from §4.1 against pod, returning one
// Finding per violation. trustedRegistries is the admin list unioned with
// builtinTrustedRegistries.
func EvaluatePod(pod *corev1.Pod, trustedRegistries map[string]bool) []Finding {
	var findings []Finding
	spec := &pod.Spec

	if spec.HostNetwork {
		findings = append(findings, Finding{"Pod", pod.Name, "Host network enabled", kure.SeverityHigh, kure.CategorySecurity,
			"Pod shares the host's network namespace.", "Remove hostNetwork: true unless strictly required."})
	}
	if spec.HostPID {
		findings = append(findings, Finding{"Pod", pod.Name, "Host PID namespace enabled", kure.SeverityHigh, kure.CategorySecurity,
			"Pod shares the host's PID namespace.", "Remove hostPID: true unless strictly required."})
	}
	if spec.HostIPC {
		findings = append(findings, Finding{"Pod", pod.Name, "Host IPC namespace enabled", kure.SeverityHigh, kure.CategorySecurity,
			"Pod shares the host's IPC namespace.", "Remove hostIPC: true unless strictly required."})
	}

	for _, vol := range spec.Volumes {
		if vol.HostPath != nil {
			findings = append(findings, Finding{"Pod", pod.Name, "HostPath volume mounted", hostPathSeverity(vol.HostPath.Path), kure.CategorySecurity,
				"Pod mounts hostPath " + vol.HostPath.Path + ".", "Use a PersistentVolumeClaim instead of a hostPath volume."})
		}
		if vol.EmptyDir != nil && vol.EmptyDir.SizeLimit != nil {
			const tenGiB = 10 * 1024 * 1024 * 1024
			if vol.EmptyDir.SizeLimit.Value() > tenGiB {
				findings = append(findings, Finding{"Pod", pod.Name, "Oversized emptyDir volume", kure.SeverityLow, kure.CategoryBestPractice,
					"emptyDir volume " + vol.Name + " allows more than 10GiB.", "Lower emptyDir.sizeLimit to a bound appropriate for the workload."})
			}
		}
	}

	if sc := spec.SecurityContext; sc != nil {
		if sc.RunAsUser != nil && *sc.RunAsUser == 0 {
			findings = append(findings, Finding{"Pod", pod.Name, "Running as root (UID 0)", kure.SeverityHigh, kure.CategorySecurity,
				"Pod-level securityContext sets runAsUser: 0.", "Set runAsNonRoot: true and a non-zero runAsUser."})
		}
		if sc.RunAsNonRoot == nil {
			findings = append(findings, Finding{"Pod", pod.Name, "Missing runAsNonRoot", kure.SeverityMedium, kure.CategoryBestPractice,
				"Pod does not set runAsNonRoot.", "Set securityContext.runAsNonRoot: true."})
		}
		if sc.SeccompProfile == nil || (sc.SeccompProfile.Type != corev1.SeccompProfileTypeRuntimeDefault && sc.SeccompProfile.Type != corev1.SeccompProfileTypeLocalhost) {
			findings = append(findings, Finding{"Pod", pod.Name, "Missing seccomp profile", kure.SeverityMedium, kure.CategoryBestPractice,
				"Pod does not set a RuntimeDefault or Localhost seccomp profile.", "Set securityContext.seccompProfile.type to RuntimeDefault."})
		}
		if sc.SELinuxOptions == nil {
			findings = append(findings, Finding{"Pod", pod.Name, "Missing SELinux options", kure.SeverityLow, kure.CategoryBestPractice,
				"Pod does not set SELinux options.", "Set securityContext.seLinuxOptions appropriately for the cluster's SELinux policy."})
		}
	} else {
		findings = append(findings, Finding{"Pod", pod.Name, "Missing runAsNonRoot", kure.SeverityMedium, kure.CategoryBestPractice,
			"Pod has no securityContext.", "Set securityContext.runAsNonRoot: true."})
	}

	if _, ok := pod.Annotations["container.apparmor.security.beta.kubernetes.io/"+firstContainerName(pod)]; !ok && !hasAnyAppArmorAnnotation(pod) {
		findings = append(findings, Finding{"Pod", pod.Name, "Missing AppArmor annotation", kure.SeverityLow, kure.CategoryBestPractice,
			"Pod has no AppArmor profile annotation.", "Add container.apparmor.security.beta.kubernetes.io/<container> annotation."})
	}

	sa := spec.ServiceAccountName
	if sa == "" || sa == "default" {
		findings = append(findings, Finding{"Pod", pod.Name, "Default or system ServiceAccount", kure.SeverityMedium, kure.CategoryBestPractice,
			"Pod uses the default ServiceAccount.", "Create and assign a dedicated, least-privilege ServiceAccount."})
	}
	if spec.AutomountServiceAccountToken == nil || *spec.AutomountServiceAccountToken {
		findings = append(findings, Finding{"Pod", pod.Name, "ServiceAccount token automount not disabled", kure.SeverityMedium, kure.CategoryBestPractice,
			"Pod does not disable automountServiceAccountToken.", "Set automountServiceAccountToken: false unless the workload calls the API server."})
	}

	for _, hp := range hostPorts(spec) {
		findings = append(findings, Finding{"Pod", pod.Name, "Host port exposed: " + strconv.Itoa(int(hp)), kure.SeverityMedium, kure.CategorySecurity,
			"Container binds host port " + strconv.Itoa(int(hp)) + ".", "Remove hostPort or use a Service instead."})
	}

	allContainers := append(append([]corev1.Container{}, spec.InitContainers...), spec.Containers...)
	for _, c := range allContainers {
		findings = append(findings, evaluateContainer(pod, c, trustedRegistries)...)
	}

	return findings
}

func evaluateContainer(pod *corev1.Pod, c corev1.Container, trustedRegistries map[string]bool) []Finding {
	var findings []Finding
	name := c.Name

	if sc := c.SecurityContext; sc != nil {
		if sc.Privileged != nil && *sc.Privileged {
			findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Privileged container", name), kure.SeverityCritical, kure.CategorySecurity,
				"Container " + name + " runs privileged.", "Remove securityContext.privileged: true."})
		}
		if sc.AllowPrivilegeEscalation != nil && *sc.AllowPrivilegeEscalation {
			findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Privilege escalation allowed", name), kure.SeverityHigh, kure.CategorySecurity,
				"Container " + name + " allows privilege escalation.", "Set allowPrivilegeEscalation: false."})
		}
		if sc.Capabilities != nil {
			for _, addedCap := range sc.Capabilities.Add {
				if dangerousCapabilities[string(addedCap)] {
					findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Dangerous capability added: "+string(addedCap), name), kure.SeverityHigh, kure.CategorySecurity,
						"Container " + name + " adds capability " + string(addedCap) + ".", "Drop the capability unless the workload genuinely requires it."})
				}
			}
			if !dropsAll(sc.Capabilities.Drop) {
				findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Missing drop ALL capabilities", name), kure.SeverityMedium, kure.CategorySecurity,
					"Container " + name + " does not drop all capabilities.", "Set securityContext.capabilities.drop: [ALL]."})
			}
		} else {
			findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Missing drop ALL capabilities", name), kure.SeverityMedium, kure.CategorySecurity,
				"Container " + name + " does not set capabilities.drop.", "Set securityContext.capabilities.drop: [ALL]."})
		}
		if sc.ReadOnlyRootFilesystem == nil || !*sc.ReadOnlyRootFilesystem {
			findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Writable root filesystem", name), kure.SeverityMedium, kure.CategoryBestPractice,
				"Container " + name + " does not set a read-only root filesystem.", "Set securityContext.readOnlyRootFilesystem: true."})
		}
		if sc.RunAsUser != nil && *sc.RunAsUser == 0 {
			findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Running as root (UID 0)", name), kure.SeverityHigh, kure.CategorySecurity,
				"Container " + name + " sets runAsUser: 0.", "Set a non-zero runAsUser."})
		}
	} else {
		findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Missing drop ALL capabilities", name), kure.SeverityMedium, kure.CategorySecurity,
			"Container " + name + " sets no securityContext.", "Set securityContext.capabilities.drop: [ALL]."})
		findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Writable root filesystem", name), kure.SeverityMedium, kure.CategoryBestPractice,
			"Container " + name + " sets no securityContext.", "Set securityContext.readOnlyRootFilesystem: true."})
	}

	if c.Resources.Limits == nil || c.Resources.Limits.Cpu().IsZero() || c.Resources.Limits.Memory().IsZero() {
		findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Missing resource limits", name), kure.SeverityLow, kure.CategoryBestPractice,
			"Container " + name + " has no CPU/memory limits.", "Set resources.limits.cpu and resources.limits.memory."})
	}

	for _, env := range c.Env {
		if env.ValueFrom != nil && env.ValueFrom.SecretKeyRef != nil {
			findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Secret exposed via environment variable", name), kure.SeverityMedium, kure.CategorySecurity,
				"Container " + name + " env var " + env.Name + " sources a Secret.", "Mount the secret as a file instead of an environment variable."})
		}
	}

	tag := imageTag(c.Image)
	if tag == "latest" || tag == "" {
		findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Untagged or :latest image", name), kure.SeverityMedium, kure.CategoryBestPractice,
			"Container " + name + " uses image " + c.Image + ".", "Pin the image to an immutable digest or versioned tag."})
	} else if c.ImagePullPolicy != corev1.PullAlways {
		findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Mutable tag without imagePullPolicy Always", name), kure.SeverityLow, kure.CategoryBestPractice,
			"Container " + name + " does not force a pull on a mutable tag.", "Set imagePullPolicy: Always or switch to a digest reference."})
	}

	registry := imageRegistry(c.Image)
	if !builtinTrustedRegistries[registry] && !trustedRegistries[registry] {
		findings = append(findings, Finding{"Pod", pod.Name, containerScopedTitle("Image from untrusted registry", name), kure.SeverityHigh, kure.CategorySecurity,
			"Container " + name + " pulls from untrusted registry " + registry + ".", "Use an approved registry or add it to the trusted registry list."})
	}

	return findings
}

func hasAnyAppArmorAnnotation(pod *corev1.Pod) bool {
	for k := range pod.Annotations {
		if strings.HasPrefix(k, "container.apparmor.security.beta.kubernetes.io/") {
			return true
		}
	}
	return false
}

func firstContainerName(pod *corev1.Pod) string {
	if len(pod.Spec.Containers) > 0 {
		return pod.Spec.Containers[0].Name
	}
	return ""
}

func dropsAll(drop []corev1.Capability) bool {
	for _, c := range drop {
		if c == "ALL" {
			return true
		}
	}
	return false
}

func hostPorts(spec *corev1.PodSpec) []int32 {
	var ports []int32
	for _, c := range spec.Containers {
		for _, p := range c.Ports {
			if p.HostPort != 0 {
				ports = append(ports, p.HostPort)
			}
		}
	}
	return ports
}
