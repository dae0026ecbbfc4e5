package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

const (
	secretName     = "triage-secrets"
	serviceAccount = "triage-fanout-sa"
	fanoutAppLabel = "task-fanout"
)

// Client wraps the Kubernetes client
type Client struct {
	clientset kubernetes.Interface
	namespace string
	image     string
	now       func() time.Time
}

// FanoutJob describes one batch fan-out run
type FanoutJob struct {
	Limit int
	Force bool
}

// NewClient creates a new Kubernetes client. An empty namespace defaults to "triage".
func NewClient(namespace, image string) (*Client, error) {
	config, err := getKubeConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return NewClientWithClientset(clientset, namespace, image), nil
}

// NewClientWithClientset wraps an existing clientset
func NewClientWithClientset(cs kubernetes.Interface, namespace, image string) *Client {
	if namespace == "" {
		namespace = "triage"
	}
	return &Client{
		clientset: cs,
		namespace: namespace,
		image:     image,
		now:       time.Now,
	}
}

// getKubeConfig prefers in-cluster config, then KUBECONFIG, then ~/.kube/config
func getKubeConfig() (*rest.Config, error) {
	config, err := rest.InClusterConfig()
	if err == nil {
		return config, nil
	}

	var kubeconfig string
	if home := homedir.HomeDir(); home != "" {
		kubeconfig = filepath.Join(home, ".kube", "config")
	}
	if envKubeconfig := os.Getenv("KUBECONFIG"); envKubeconfig != "" {
		kubeconfig = envKubeconfig
	}

	config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}
	return config, nil
}

// CreateFanoutJob launches `triage create-tasks --sync` as a Job and returns its name
func (c *Client) CreateFanoutJob(ctx context.Context, spec FanoutJob) (string, error) {
	name := fmt.Sprintf("triage-fanout-%d", c.now().Unix())
	labels := map[string]string{
		"app":          fanoutAppLabel,
		"job-type":     "batch",
		"triggered-by": "api",
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: c.namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			// fan-out is idempotent per generation, so a pod retry is safe
			BackoffLimit:            int32Ptr(3),
			TTLSecondsAfterFinished: int32Ptr(86400),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       c.buildPodSpec(spec),
			},
		},
	}

	if _, err := c.clientset.BatchV1().Jobs(c.namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return name, nil
}

func fanoutArgs(spec FanoutJob) []string {
	args := []string{"create-tasks", "--sync"}
	if spec.Limit > 0 {
		args = append(args, "--limit", strconv.Itoa(spec.Limit))
	}
	if spec.Force {
		args = append(args, "--force")
	}
	return args
}

func (c *Client) buildPodSpec(spec FanoutJob) corev1.PodSpec {
	return corev1.PodSpec{
		RestartPolicy:      corev1.RestartPolicyNever,
		ServiceAccountName: serviceAccount,
		Containers: []corev1.Container{
			{
				Name:    "create-tasks",
				Image:   c.image,
				Command: []string{"/app/bin/triage"},
				Args:    fanoutArgs(spec),
				Env: []corev1.EnvVar{
					secretEnv("DATABASE_URL", "database-url"),
					secretEnv("REDIS_URL", "redis-url"),
					secretEnv("SENDGRID_API_KEY", "sendgrid-api-key"),
				},
				Resources: corev1.ResourceRequirements{
					Requests: corev1.ResourceList{
						corev1.ResourceMemory: resourceQuantity("128Mi"),
						corev1.ResourceCPU:    resourceQuantity("100m"),
					},
					Limits: corev1.ResourceList{
						corev1.ResourceMemory: resourceQuantity("512Mi"),
						corev1.ResourceCPU:    resourceQuantity("500m"),
					},
				},
			},
		},
	}
}

func secretEnv(name, key string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: secretName},
				Key:                  key,
			},
		},
	}
}

// GetJobStatus gets the status of a job
func (c *Client) GetJobStatus(ctx context.Context, jobName string) (*batchv1.Job, error) {
	job, err := c.clientset.BatchV1().Jobs(c.namespace).Get(ctx, jobName, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// DeleteJob deletes a job and its pods
func (c *Client) DeleteJob(ctx context.Context, jobName string) error {
	deletePolicy := metav1.DeletePropagationForeground
	err := c.clientset.BatchV1().Jobs(c.namespace).Delete(ctx, jobName, metav1.DeleteOptions{
		PropagationPolicy: &deletePolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func int32Ptr(i int32) *int32 {
	return &i
}

func resourceQuantity(value string) resource.Quantity {
	qty, err := resource.ParseQuantity(value)
	if err != nil {
		return resource.Quantity{}
	}
	return qty
}
