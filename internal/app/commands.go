package app

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"sigs.k8s.io/yaml"

	"github.com/fioletoven/b4n/internal/config"
	"github.com/fioletoven/b4n/internal/executor"
	"github.com/fioletoven/b4n/internal/k8s"
)

// FetchYAMLPayload/SetYAMLPayload/DeletePayload are the command-specific
// Payload shapes for the executor's closed tagged command set (spec §4.4).
type FetchYAMLPayload struct{ Ref k8s.ResourceRef }
type SetYAMLPayload struct {
	Ref k8s.ResourceRef
	Raw string
}
type DeletePayload struct{ Refs []k8s.ResourceRef }
type ListPortsPayload struct{ Ref k8s.ResourceRef }

// runCommand is the production executor.Runner: it switches on
// cmd.Kind and executes against the live Bundle/ConfigStore. Every branch
// polls ctx before its observable side effect, per spec §4.4's cancellation
// contract.
func runCommand(ctx context.Context, bundle *k8s.Bundle, cfg *config.Store, cmd executor.Command) executor.Result {
	if ctx.Err() != nil {
		return executor.Result{Err: ctx.Err()}
	}

	switch cmd.Kind {
	case executor.CmdNewKubernetesClient:
		return executor.Result{Value: bundle}

	case executor.CmdFetchYAML:
		p, ok := cmd.Payload.(FetchYAMLPayload)
		if !ok {
			return executor.Result{Err: fmt.Errorf("invalid FetchYAML payload")}
		}
		obj, err := resourceInterface(bundle, p.Ref).Get(ctx, p.Ref.Name, metav1.GetOptions{})
		if err != nil {
			return executor.Result{Err: err}
		}
		raw, err := yaml.Marshal(obj.Object)
		if err != nil {
			return executor.Result{Err: err}
		}
		return executor.Result{Value: string(raw)}

	case executor.CmdSetYAML:
		p, ok := cmd.Payload.(SetYAMLPayload)
		if !ok {
			return executor.Result{Err: fmt.Errorf("invalid SetYAML payload")}
		}
		var obj map[string]interface{}
		if err := yaml.Unmarshal([]byte(p.Raw), &obj); err != nil {
			return executor.Result{Err: err}
		}
		if ctx.Err() != nil {
			return executor.Result{Err: ctx.Err()}
		}
		unstr := &unstructured.Unstructured{Object: obj}
		_, err := resourceInterface(bundle, p.Ref).Update(ctx, unstr, metav1.UpdateOptions{})
		if err != nil {
			return executor.Result{Err: err}
		}
		return executor.Result{Value: true}

	case executor.CmdDeleteResources:
		p, ok := cmd.Payload.(DeletePayload)
		if !ok {
			return executor.Result{Err: fmt.Errorf("invalid Delete payload")}
		}
		propagation := metav1.DeletePropagationBackground
		for _, ref := range p.Refs {
			if ctx.Err() != nil {
				return executor.Result{Err: ctx.Err()}
			}
			if err := resourceInterface(bundle, ref).Delete(ctx, ref.Name, metav1.DeleteOptions{PropagationPolicy: &propagation}); err != nil {
				return executor.Result{Err: err}
			}
		}
		return executor.Result{Value: len(p.Refs)}

	case executor.CmdListContexts:
		contexts, err := k8s.ListContexts("")
		if err != nil {
			return executor.Result{Err: err}
		}
		return executor.Result{Value: contexts}

	case executor.CmdListPorts:
		p, ok := cmd.Payload.(ListPortsPayload)
		if !ok {
			return executor.Result{Err: fmt.Errorf("invalid ListPorts payload")}
		}
		obj, err := resourceInterface(bundle, p.Ref).Get(ctx, p.Ref.Name, metav1.GetOptions{})
		if err != nil {
			return executor.Result{Err: err}
		}
		return executor.Result{Value: podContainerPorts(obj)}

	case executor.CmdSaveHistory:
		h, ok := cmd.Payload.(config.History)
		if !ok {
			return executor.Result{Err: fmt.Errorf("invalid SaveHistory payload")}
		}
		return executor.Result{Err: cfg.SaveHistory(h)}

	case executor.CmdSaveConfig:
		c, ok := cmd.Payload.(config.Config)
		if !ok {
			return executor.Result{Err: fmt.Errorf("invalid SaveConfig payload")}
		}
		return executor.Result{Err: cfg.SaveConfig(c)}

	case executor.CmdListThemes:
		names, err := cfg.ListThemes()
		if err != nil {
			return executor.Result{Err: err}
		}
		return executor.Result{Value: names}

	default:
		return executor.Result{Err: fmt.Errorf("unknown command kind %v", cmd.Kind)}
	}
}

// podContainerPorts collects every distinct containerPort declared across a
// pod's spec.containers, in the order the containers/ports appear.
func podContainerPorts(pod *unstructured.Unstructured) []int {
	var ports []int
	seen := map[int64]bool{}
	containers, _, _ := unstructured.NestedSlice(pod.Object, "spec", "containers")
	for _, raw := range containers {
		c, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		declared, _, _ := unstructured.NestedSlice(c, "ports")
		for _, rawPort := range declared {
			pm, ok := rawPort.(map[string]interface{})
			if !ok {
				continue
			}
			cp, ok := pm["containerPort"].(int64)
			if !ok || seen[cp] {
				continue
			}
			seen[cp] = true
			ports = append(ports, int(cp))
		}
	}
	return ports
}

func resourceInterface(bundle *k8s.Bundle, ref k8s.ResourceRef) dynamic.ResourceInterface {
	gvr := schema.GroupVersionResource{Group: ref.Kind.Group, Version: ref.Kind.Version, Resource: ref.Kind.Plural}
	r := bundle.Dynamic.Resource(gvr)
	if ref.Namespace.IsSpecific() {
		return r.Namespace(ref.Namespace.Value())
	}
	return r
}
