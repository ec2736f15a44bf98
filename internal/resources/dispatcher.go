package resources

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/fioletoven/b4n/internal/k8s"
)

// KindData produces a ResourceItem from a dynamic object for the given
// plural kind name. allNamespaces controls whether namespace-scoped kinds
// carry a NAMESPACE column (matching kubectl's "-A" output shape, the
// origin of this dispatch table in the teacher's informer.Store).
type KindData func(obj *unstructured.Unstructured, allNamespaces bool) (k8s.ResourceItem, error)

// KindHeader produces the column schema for a plural kind name.
type KindHeader func(allNamespaces bool) Header

var dataFuncs = map[string]KindData{
	"pods":         podData,
	"deployments":  deploymentData,
	"services":     serviceData,
	"nodes":        nodeData,
	"events":       eventData,
	"jobs":         jobData,
	"namespaces":   namespaceData,
	"configmaps":   configMapData,
}

var headerFuncs = map[string]KindHeader{
	"pods":        podHeader,
	"deployments": deploymentHeader,
	"services":    serviceHeader,
	"nodes":       nodeHeader,
	"events":      eventHeader,
	"jobs":        jobHeader,
	"namespaces":  namespaceHeader,
	"configmaps":  configMapHeader,
}

// Dispatch resolves the (data, header) pair for pluralKind, falling back to
// a generic projection (name/namespace/age only) for kinds with no
// dedicated formatter -- this is what custom resources without
// additionalPrinterColumns get.
func Dispatch(pluralKind string) (KindData, KindHeader) {
	if d, ok := dataFuncs[pluralKind]; ok {
		return d, headerFuncs[pluralKind]
	}
	return genericData, genericHeader
}

// DispatchCRD builds a (data, header) pair from a CRD's
// additionalPrinterColumns (spec's DOMAIN STACK CRD-columns feature).
func DispatchCRD(columns []CRDColumn) (KindData, KindHeader) {
	header := func(allNamespaces bool) Header {
		h := genericHeader(allNamespaces)
		for _, c := range columns {
			h.Columns = append(h.Columns, BoundColumn(strings.ToUpper(c.Name), 4, 24, false))
		}
		return h
	}
	data := func(obj *unstructured.Unstructured, allNamespaces bool) (k8s.ResourceItem, error) {
		item, err := genericData(obj, allNamespaces)
		if err != nil {
			return item, err
		}
		for _, c := range columns {
			val, _, _ := unstructured.NestedString(obj.Object, strings.Split(strings.TrimPrefix(c.JSONPath, "."), ".")...)
			item.Data.Columns[strings.ToUpper(c.Name)] = k8s.NewTextValue(val)
		}
		return item, nil
	}
	return data, header
}

// CRDColumn mirrors one apiextensions.k8s.io/v1 additionalPrinterColumns
// entry.
type CRDColumn struct {
	Name     string
	JSONPath string
}

func baseItem(obj *unstructured.Unstructured) k8s.ResourceItem {
	created := obj.GetCreationTimestamp().Time
	tags := []string{strings.ToLower(obj.GetName())}
	for k, v := range obj.GetLabels() {
		tags = append(tags, strings.ToLower(k+":"+v))
	}
	for k, v := range obj.GetAnnotations() {
		tags = append(tags, strings.ToLower(k+":"+v))
	}
	return k8s.ResourceItem{
		Uid:       string(obj.GetUID()),
		Name:      obj.GetName(),
		Namespace: obj.GetNamespace(),
		CreatedAt: created,
		Tags:      tags,
		Data:      k8s.ResourceData{Columns: map[string]k8s.ResourceValue{}},
	}
}

func withNamespaceColumn(h Header, allNamespaces bool) Header {
	if allNamespaces {
		h.Columns = append([]Column{NamespaceColumn}, h.Columns...)
	}
	return h
}

func genericData(obj *unstructured.Unstructured, allNamespaces bool) (k8s.ResourceItem, error) {
	item := baseItem(obj)
	item.Data.Columns["AGE"] = k8s.NewTimeValue(item.CreatedAt)
	return item, nil
}

func genericHeader(allNamespaces bool) Header {
	h := Header{Columns: []Column{NameColumn, AgeColumn}}
	return withNamespaceColumn(h, allNamespaces)
}

func podHeader(allNamespaces bool) Header {
	h := Header{Columns: []Column{
		NameColumn,
		BoundColumn("READY", 5, 5, true),
		BoundColumn("STATUS", 7, 18, false),
		BoundColumn("RESTARTS", 8, 8, true),
		AgeColumn,
		BoundColumn("IP", 8, 16, false),
		BoundColumn("NODE", 6, 24, false),
	}}
	return withNamespaceColumn(h, allNamespaces)
}

func podData(obj *unstructured.Unstructured, allNamespaces bool) (k8s.ResourceItem, error) {
	item := baseItem(obj)

	phase, _, _ := unstructured.NestedString(obj.Object, "status", "phase")
	podIP, _, _ := unstructured.NestedString(obj.Object, "status", "podIP")
	nodeName, _, _ := unstructured.NestedString(obj.Object, "spec", "nodeName")
	containerStatuses, _, _ := unstructured.NestedSlice(obj.Object, "status", "containerStatuses")
	containers, _, _ := unstructured.NestedSlice(obj.Object, "spec", "containers")

	ready, restarts := 0, int64(0)
	allReady := true
	isTerminating := obj.GetDeletionTimestamp() != nil
	for _, raw := range containerStatuses {
		cs, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if v, found, _ := unstructured.NestedBool(cs, "ready"); found && v {
			ready++
		} else {
			allReady = false
		}
		if v, found, _ := unstructured.NestedInt64(cs, "restartCount"); found {
			restarts += v
		}
	}

	total := len(containers)
	status := phase
	if status == "" {
		status = "Unknown"
	}
	if isTerminating {
		status = "Terminating"
	}
	if podIP == "" {
		podIP = "<none>"
	}
	if nodeName == "" {
		nodeName = "<none>"
	}

	item.Data.IsReady = allReady && total > 0
	item.Data.IsTerminating = isTerminating
	item.Data.IsCompleted = phase == "Succeeded"
	item.Data.Columns["READY"] = k8s.NewTextValue(fmt.Sprintf("%d/%d", ready, total))
	item.Data.Columns["STATUS"] = k8s.NewTextValue(status)
	item.Data.Columns["RESTARTS"] = k8s.ResourceValue{Text: strconv.FormatInt(restarts, 10), SortKey: zeroPad(restarts)}
	item.Data.Columns["AGE"] = k8s.NewTimeValue(item.CreatedAt)
	item.Data.Columns["IP"] = k8s.NewTextValue(podIP)
	item.Data.Columns["NODE"] = k8s.NewTextValue(nodeName)
	return item, nil
}

func deploymentHeader(allNamespaces bool) Header {
	h := Header{Columns: []Column{
		NameColumn,
		BoundColumn("READY", 5, 5, true),
		BoundColumn("UP-TO-DATE", 10, 10, true),
		BoundColumn("AVAILABLE", 9, 9, true),
		AgeColumn,
	}}
	return withNamespaceColumn(h, allNamespaces)
}

func deploymentData(obj *unstructured.Unstructured, allNamespaces bool) (k8s.ResourceItem, error) {
	item := baseItem(obj)
	ready, _, _ := unstructured.NestedInt64(obj.Object, "status", "readyReplicas")
	total, _, _ := unstructured.NestedInt64(obj.Object, "status", "replicas")
	upToDate, _, _ := unstructured.NestedInt64(obj.Object, "status", "updatedReplicas")
	available, _, _ := unstructured.NestedInt64(obj.Object, "status", "availableReplicas")

	item.Data.IsReady = ready == total && total > 0
	item.Data.Columns["READY"] = k8s.NewTextValue(fmt.Sprintf("%d/%d", ready, total))
	item.Data.Columns["UP-TO-DATE"] = k8s.ResourceValue{Text: strconv.FormatInt(upToDate, 10), SortKey: zeroPad(upToDate)}
	item.Data.Columns["AVAILABLE"] = k8s.ResourceValue{Text: strconv.FormatInt(available, 10), SortKey: zeroPad(available)}
	item.Data.Columns["AGE"] = k8s.NewTimeValue(item.CreatedAt)
	return item, nil
}

func serviceHeader(allNamespaces bool) Header {
	h := Header{Columns: []Column{
		NameColumn,
		BoundColumn("TYPE", 9, 12, false),
		BoundColumn("CLUSTER-IP", 10, 15, false),
		BoundColumn("PORT(S)", 7, 24, false),
		AgeColumn,
	}}
	return withNamespaceColumn(h, allNamespaces)
}

func serviceData(obj *unstructured.Unstructured, allNamespaces bool) (k8s.ResourceItem, error) {
	item := baseItem(obj)
	typ, _, _ := unstructured.NestedString(obj.Object, "spec", "type")
	clusterIP, _, _ := unstructured.NestedString(obj.Object, "spec", "clusterIP")
	ports, _, _ := unstructured.NestedSlice(obj.Object, "spec", "ports")
	if typ == "" {
		typ = "ClusterIP"
	}
	var portStrs []string
	for _, raw := range ports {
		p, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		port, _, _ := unstructured.NestedInt64(p, "port")
		proto, _, _ := unstructured.NestedString(p, "protocol")
		if proto == "" {
			proto = "TCP"
		}
		portStrs = append(portStrs, fmt.Sprintf("%d/%s", port, proto))
	}
	item.Data.Columns["TYPE"] = k8s.NewTextValue(typ)
	item.Data.Columns["CLUSTER-IP"] = k8s.NewTextValue(clusterIP)
	item.Data.Columns["PORT(S)"] = k8s.NewTextValue(strings.Join(portStrs, ","))
	item.Data.Columns["AGE"] = k8s.NewTimeValue(item.CreatedAt)
	return item, nil
}

func nodeHeader(allNamespaces bool) Header {
	return Header{Columns: []Column{
		NameColumn,
		BoundColumn("STATUS", 6, 16, false),
		BoundColumn("ROLES", 5, 20, false),
		AgeColumn,
		BoundColumn("VERSION", 7, 16, false),
	}}
}

func nodeData(obj *unstructured.Unstructured, allNamespaces bool) (k8s.ResourceItem, error) {
	item := baseItem(obj)
	conditions, _, _ := unstructured.NestedSlice(obj.Object, "status", "conditions")
	version, _, _ := unstructured.NestedString(obj.Object, "status", "nodeInfo", "kubeletVersion")

	status := "NotReady"
	for _, raw := range conditions {
		c, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		typ, _, _ := unstructured.NestedString(c, "type")
		s, _, _ := unstructured.NestedString(c, "status")
		if typ == "Ready" && s == "True" {
			status = "Ready"
		}
	}
	var roles []string
	for k := range obj.GetLabels() {
		if strings.HasPrefix(k, "node-role.kubernetes.io/") {
			roles = append(roles, strings.TrimPrefix(k, "node-role.kubernetes.io/"))
		}
	}
	if len(roles) == 0 {
		roles = []string{"<none>"}
	}

	item.Data.IsReady = status == "Ready"
	item.Data.Columns["STATUS"] = k8s.NewTextValue(status)
	item.Data.Columns["ROLES"] = k8s.NewTextValue(strings.Join(roles, ","))
	item.Data.Columns["AGE"] = k8s.NewTimeValue(item.CreatedAt)
	item.Data.Columns["VERSION"] = k8s.NewTextValue(version)
	return item, nil
}

// eventHeader is the default events schema: last seen, type, reason, object
// and message. allNamespaces adds the NAMESPACE column as for other kinds;
// EventHeaderFiltered is the message-only variant.
func eventHeader(allNamespaces bool) Header {
	lastSeen := BoundColumn("LAST SEEN", 6, 12, true)
	lastSeen.HasReversedOrder = true
	h := Header{Columns: []Column{
		lastSeen,
		BoundColumn("TYPE", 6, 10, false),
		BoundColumn("REASON", 6, 20, false),
		BoundColumn("OBJECT", 8, 30, false),
		BoundColumn("MESSAGE", 8, 60, false),
	}}
	return withNamespaceColumn(h, allNamespaces)
}

// EventHeaderFiltered is the filtered variant mentioned in spec §4.7: it
// drops last/type/reason/object in favor of message only.
func EventHeaderFiltered(allNamespaces bool) Header {
	h := Header{Columns: []Column{BoundColumn("MESSAGE", 8, 80, false)}}
	return withNamespaceColumn(h, allNamespaces)
}

func eventData(obj *unstructured.Unstructured, allNamespaces bool) (k8s.ResourceItem, error) {
	item := baseItem(obj)
	lastSeen, _, _ := unstructured.NestedString(obj.Object, "lastTimestamp")
	typ, _, _ := unstructured.NestedString(obj.Object, "type")
	reason, _, _ := unstructured.NestedString(obj.Object, "reason")
	message, _, _ := unstructured.NestedString(obj.Object, "message")
	objKind, _, _ := unstructured.NestedString(obj.Object, "involvedObject", "kind")
	objName, _, _ := unstructured.NestedString(obj.Object, "involvedObject", "name")

	if typ == "" {
		typ = "Normal"
	}
	if reason == "" {
		reason = "Unknown"
	}
	age := item.CreatedAt
	if t, err := time.Parse(time.RFC3339, lastSeen); err == nil {
		age = t
	}

	item.Data.Columns["LAST SEEN"] = k8s.NewTimeValue(age)
	item.Data.Columns["TYPE"] = k8s.NewTextValue(typ)
	item.Data.Columns["REASON"] = k8s.NewTextValue(reason)
	item.Data.Columns["OBJECT"] = k8s.NewTextValue(objKind + "/" + objName)
	item.Data.Columns["MESSAGE"] = k8s.NewTextValue(message)
	return item, nil
}

func jobHeader(allNamespaces bool) Header {
	h := Header{Columns: []Column{
		NameColumn,
		BoundColumn("COMPLETIONS", 11, 11, true),
		BoundColumn("DURATION", 8, 8, true),
		AgeColumn,
	}}
	return withNamespaceColumn(h, allNamespaces)
}

func jobData(obj *unstructured.Unstructured, allNamespaces bool) (k8s.ResourceItem, error) {
	item := baseItem(obj)
	succeeded, _, _ := unstructured.NestedInt64(obj.Object, "status", "succeeded")
	completions, found, _ := unstructured.NestedInt64(obj.Object, "spec", "completions")
	if !found {
		completions = 1
	}
	duration := "<none>"
	startStr, _, _ := unstructured.NestedString(obj.Object, "status", "startTime")
	if start, err := time.Parse(time.RFC3339, startStr); err == nil {
		end := time.Now()
		if compStr, _, _ := unstructured.NestedString(obj.Object, "status", "completionTime"); compStr != "" {
			if t, err := time.Parse(time.RFC3339, compStr); err == nil {
				end = t
			}
		}
		duration = end.Sub(start).Truncate(time.Second).String()
	}

	item.Data.IsJob = true
	item.Data.IsCompleted = succeeded >= completions
	item.Data.Columns["COMPLETIONS"] = k8s.NewTextValue(fmt.Sprintf("%d/%d", succeeded, completions))
	item.Data.Columns["DURATION"] = k8s.NewTextValue(duration)
	item.Data.Columns["AGE"] = k8s.NewTimeValue(item.CreatedAt)
	return item, nil
}

func namespaceHeader(allNamespaces bool) Header {
	return Header{Columns: []Column{NameColumn, BoundColumn("STATUS", 6, 12, false), AgeColumn}}
}

func namespaceData(obj *unstructured.Unstructured, allNamespaces bool) (k8s.ResourceItem, error) {
	item := baseItem(obj)
	phase, _, _ := unstructured.NestedString(obj.Object, "status", "phase")
	if obj.GetDeletionTimestamp() != nil {
		phase = "Terminating"
	} else if phase == "" {
		phase = "Active"
	}
	item.Data.IsTerminating = phase == "Terminating"
	item.Data.Columns["STATUS"] = k8s.NewTextValue(phase)
	item.Data.Columns["AGE"] = k8s.NewTimeValue(item.CreatedAt)
	return item, nil
}

func configMapHeader(allNamespaces bool) Header {
	h := Header{Columns: []Column{NameColumn, BoundColumn("DATA", 4, 4, true), AgeColumn}}
	return withNamespaceColumn(h, allNamespaces)
}

func configMapData(obj *unstructured.Unstructured, allNamespaces bool) (k8s.ResourceItem, error) {
	item := baseItem(obj)
	data, _, _ := unstructured.NestedMap(obj.Object, "data")
	item.Data.Columns["DATA"] = k8s.ResourceValue{Text: strconv.Itoa(len(data)), SortKey: zeroPad(int64(len(data)))}
	item.Data.Columns["AGE"] = k8s.NewTimeValue(item.CreatedAt)
	return item, nil
}

// ContainerHeader is the column schema for the synthetic container rows a
// pod-containers projection produces (spec §4.1, §4.7): restarts, ready,
// state, init flag, image, and optional metrics when the Stats aggregator
// has pod-metrics available.
func ContainerHeader(withMetrics bool) Header {
	cols := []Column{
		NameColumn,
		BoundColumn("READY", 5, 5, true),
		BoundColumn("STATE", 7, 18, false),
		BoundColumn("INIT", 4, 4, true),
		BoundColumn("RESTARTS", 8, 8, true),
		BoundColumn("IMAGE", 10, 60, false),
	}
	if withMetrics {
		cols = append(cols,
			BoundColumn("CPU", 4, 8, true),
			BoundColumn("MEM", 4, 8, true),
		)
	}
	return Header{Columns: cols}
}

// ContainerColumns builds the column map for a single container row; name
// state/ready/restarts are derived by the Watcher from the matching
// ContainerStatus entry (running/terminated/waiting -> phase).
func ContainerColumns(state string, ready bool, isInit bool, restarts int32, image string) map[string]k8s.ResourceValue {
	readyStr := "false"
	if ready {
		readyStr = "true"
	}
	initStr := ""
	if isInit {
		initStr = "true"
	}
	return map[string]k8s.ResourceValue{
		"READY":    k8s.NewTextValue(readyStr),
		"STATE":    k8s.NewTextValue(state),
		"INIT":     k8s.NewTextValue(initStr),
		"RESTARTS": {Text: strconv.FormatInt(int64(restarts), 10), SortKey: zeroPad(int64(restarts))},
		"IMAGE":    k8s.NewTextValue(image),
	}
}

// zeroPad zero-pads a non-negative integer to 20 digits so lexical sort-key
// comparison matches numeric order (spec §3 ResourceValue).
func zeroPad(n int64) string {
	return fmt.Sprintf("%020d", n)
}
