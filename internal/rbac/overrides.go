package rbac

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Overrides é o mapa tri-state de exceções por usuário:
// chave ausente segue o papel, true concede e false revoga.
type Overrides map[Permission]bool

// ParseOverrides valida todas as chaves antes de devolver o mapa tipado.
// Nomes malformados geram ErrInvalidPermission; nomes fora do catálogo, ErrPermissionNotFound.
func ParseOverrides(raw map[string]bool) (Overrides, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Overrides, len(raw))
	for _, k := range keys {
		p := Normalize(k)
		if !WellFormed(p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPermission, k)
		}
		if !IsKnown(p) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionNotFound, p)
		}
		out[p] = raw[k]
	}
	return out, nil
}

// DecodeOverrides lê a coluna JSON, descartando chaves órfãs e valores não booleanos.
func DecodeOverrides(data []byte) (Overrides, error) {
	out := Overrides{}
	if len(data) == 0 || string(data) == "null" {
		return out, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("overrides: %w", err)
	}

	for k, v := range raw {
		b, ok := v.(bool)
		if !ok {
			continue
		}
		p := Permission(k)
		if !IsKnown(p) {
			log.Debug().Str("permission", k).Msg("rbac: override órfão ignorado")
			continue
		}
		out[p] = b
	}
	return out, nil
}

// Encode serializa o mapa para a coluna JSON.
func (o Overrides) Encode() ([]byte, error) {
	if o == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[Permission]bool(o))
}

// Clone devolve uma cópia independente.
func (o Overrides) Clone() Overrides {
	out := make(Overrides, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Raw devolve a forma serializável com chaves string.
func (o Overrides) Raw() map[string]bool {
	out := make(map[string]bool, len(o))
	for k, v := range o {
		out[string(k)] = v
	}
	return out
}

// Apply sobrepõe as exceções ao conjunto do papel: remove os false e acrescenta os true.
func (o Overrides) Apply(base []Permission) []Permission {
	seen := make(map[Permission]struct{}, len(base)+len(o))
	out := make([]Permission, 0, len(base)+len(o))

	for _, p := range base {
		if granted, ok := o[p]; ok && !granted {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	extra := make([]Permission, 0)
	for p, granted := range o {
		if !granted {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		extra = append(extra, p)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })

	return append(out, extra...)
}
