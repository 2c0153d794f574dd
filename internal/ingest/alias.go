package ingest

import (
	"fmt"
	"sort"
	"strings"
)

// 逻辑列名
const (
	FieldNorte        = "NORTE"
	FieldEste         = "ESTE"
	FieldEstado       = "Estado"
	FieldDepartamento = "Departamento"
	FieldProvincia    = "Provincia"
	FieldDistrito     = "Distrito"
	FieldUbigeo       = "UBIGEO"
	FieldNombre       = "Nombre"
	FieldCategoria    = "Categoria"
)

// LogicalFields 决定解析顺序；前两项为必需列
var LogicalFields = []string{
	FieldNorte, FieldEste, FieldEstado, FieldDepartamento, FieldProvincia,
	FieldDistrito, FieldUbigeo, FieldNombre, FieldCategoria,
}

func isRequired(logical string) bool { return logical == FieldNorte || logical == FieldEste }

// Aliases：逻辑列名 -> 可接受的表头写法（按优先级）
type Aliases map[string][]string

// DefaultAliases 返回默认别名表的副本
func DefaultAliases() Aliases {
	return Aliases{
		FieldNorte:        {"NORTE", "COORD_NORTE", "COORDENADA NORTE", "Y"},
		FieldEste:         {"ESTE", "COORD_ESTE", "COORDENADA ESTE", "X"},
		FieldEstado:       {"Estado", "CONDICION", "SITUACION"},
		FieldDepartamento: {"Departamento", "DEPARTAMEN", "DPTO"},
		FieldProvincia:    {"Provincia"},
		FieldDistrito:     {"Distrito"},
		FieldUbigeo:       {"UBIGEO", "Ubigeo del establecimiento"},
		FieldNombre:       {"Nombre del establecimiento", "Nombre", "Establecimiento"},
		FieldCategoria:    {"Categoria", "Categoría"},
	}
}

// 文档注释：解析别名覆盖配置
// 格式："NORTE=NORTE|COORD_NORTE;ESTE=ESTE"；未出现的逻辑列沿用默认值。
// 约束：未知逻辑列名或空别名列表直接报错，在启动时暴露配置问题。
func ParseAliases(raw string) (Aliases, error) {
	out := DefaultAliases()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	known := map[string]string{}
	for _, f := range LogicalFields {
		known[strings.ToLower(f)] = f
	}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("column alias %q: expected FIELD=alias|alias", part)
		}
		logical, ok := known[strings.ToLower(strings.TrimSpace(k))]
		if !ok {
			return nil, fmt.Errorf("column alias %q: unknown field, expected one of %s", k, strings.Join(LogicalFields, ", "))
		}
		var list []string
		for _, a := range strings.Split(v, "|") {
			if a = strings.TrimSpace(a); a != "" {
				list = append(list, a)
			}
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("column alias %q: empty alias list", part)
		}
		out[logical] = list
	}
	return out, nil
}

// String 以可回读的格式输出，顺序稳定
func (a Aliases) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strings.Join(a[k], "|"))
	}
	return strings.Join(parts, ";")
}

func (a Aliases) lookup(logical string) []string {
	if list, ok := a[logical]; ok && len(list) > 0 {
		return list
	}
	return []string{logical}
}
