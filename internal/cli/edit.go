package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// editPaths maps the resource names accepted by 'edit' to API collections.
var editPaths = map[string]string{
	"vm":          "vms",
	"vms":         "vms",
	"customer":    "customers",
	"customers":   "customers",
	"contact":     "contacts",
	"contacts":    "contacts",
	"contract":    "contracts",
	"contracts":   "contracts",
	"gp-account":  "gp-accounts",
	"gp-accounts": "gp-accounts",
	"cluster":     "clusters",
	"clusters":    "clusters",
	"node":        "nodes",
	"nodes":       "nodes",
}

// readOnlyFields are maintained by the server and left out of the document.
var readOnlyFields = []string{
	"id", "created_at", "updated_at", "effective_status",
	"node_count", "vm_count",
	"allocated_cpu_ghz", "allocated_ram_gb", "allocated_storage_gb",
	"available_cpu_ghz", "available_ram_gb", "available_storage_gb",
}

var editCmd = &cobra.Command{
	Use:   "edit <resource> <id>",
	Short: "Edit a record in $EDITOR and save the changed fields",
	Long: `Fetch a record as YAML, open it in your editor and send the fields you
changed back to the server.

Resources: vm, customer, contact, contract, gp-account, cluster, node.
The editor is taken from INFRADESK_EDITOR, EDITOR or VISUAL, falling back to vi.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAuthenticatedClient()
		if err != nil {
			return err
		}
		h, err := NewEditHandler(client, args[0], args[1])
		if err != nil {
			return err
		}
		h.out = cmd.OutOrStdout()
		return h.Execute()
	},
}

func init() {
	rootCmd.AddCommand(editCmd)
}

// EditHandler runs one fetch, edit, patch cycle.
type EditHandler struct {
	client     *CentralClient
	collection string
	id         string
	out        io.Writer

	// edit opens the file at path for the user; replaced in tests.
	edit func(path string) error
}

func NewEditHandler(client *CentralClient, resource, id string) (*EditHandler, error) {
	collection, ok := editPaths[strings.ToLower(resource)]
	if !ok {
		return nil, fmt.Errorf("cannot edit %q: supported resources are vm, customer, contact, contract, gp-account, cluster, node", resource)
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("resource id is required")
	}
	return &EditHandler{
		client:     client,
		collection: collection,
		id:         id,
		out:        os.Stdout,
		edit:       openEditor,
	}, nil
}

func (h *EditHandler) path() string {
	return "/api/v1/" + h.collection + "/" + url.PathEscape(h.id)
}

// Execute performs the edit workflow: fetch, edit locally, apply.
func (h *EditHandler) Execute() error {
	var original map[string]any
	if err := h.client.Get(h.path(), nil, &original); err != nil {
		return fmt.Errorf("failed to fetch %s %s: %w", h.collection, h.id, err)
	}
	for _, k := range readOnlyFields {
		delete(original, k)
	}

	content, err := h.document(original)
	if err != nil {
		return err
	}
	tmpFile, err := h.createTempFile(content)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile)

	if err := h.edit(tmpFile); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	modified, err := os.ReadFile(tmpFile)
	if err != nil {
		return fmt.Errorf("failed to read modified file: %w", err)
	}
	if bytes.Equal(modified, content) {
		fmt.Fprintln(h.out, "Edit cancelled, no changes made.")
		return nil
	}

	changed, err := changedFields(original, modified)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		fmt.Fprintln(h.out, "Edit cancelled, no changes made.")
		return nil
	}

	if err := h.client.Patch(h.path(), changed, nil); err != nil {
		return fmt.Errorf("failed to apply changes: %w", err)
	}
	keys := make([]string, 0, len(changed))
	for k := range changed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(h.out, "%s %s edited (%s).\n", h.collection, h.id, strings.Join(keys, ", "))
	return nil
}

func (h *EditHandler) document(fields map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Editing %s %s. Lines starting with '#' are ignored.\n", h.collection, h.id)
	fmt.Fprintln(&buf, "# Only changed fields are saved; server-maintained fields are not shown.")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fields); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *EditHandler) createTempFile(content []byte) (string, error) {
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("infradesk-edit-%s-*.yaml", h.collection))
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	if _, err := tmpFile.Write(content); err != nil {
		os.Remove(tmpFile.Name())
		return "", err
	}
	return tmpFile.Name(), nil
}

// changedFields parses the edited YAML and returns the top-level fields whose
// values differ from original. Both sides are compared in their JSON form so
// that YAML integers match JSON numbers. Removed fields are ignored.
func changedFields(original map[string]any, edited []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(edited, &doc); err != nil {
		return nil, fmt.Errorf("edited document is not valid YAML: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("edited document is empty")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("edited document cannot be sent as JSON: %w", err)
	}
	var normalized map[string]any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, err
	}

	changed := map[string]any{}
	for k, v := range normalized {
		if old, ok := original[k]; !ok || !reflect.DeepEqual(old, v) {
			changed[k] = v
		}
	}
	return changed, nil
}

func openEditor(path string) error {
	parts := strings.Fields(getEditor())
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func getEditor() string {
	for _, env := range []string{"INFRADESK_EDITOR", "EDITOR", "VISUAL"} {
		if editor := strings.TrimSpace(os.Getenv(env)); editor != "" {
			return editor
		}
	}
	return "vi"
}
