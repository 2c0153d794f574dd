package ingest

import (
	"sort"
	"strings"
)

// Summary：面板顶部的汇总数字
type Summary struct {
	TotalHospitals int `json:"total_hospitals"`
	Departments    int `json:"departments"`
	Provinces      int `json:"provinces"`
	Districts      int `json:"districts"`
}

// Summarize：按列统计去重后的非空值个数；列缺失记 0，空数据集全部为 0
func Summarize(ds *Dataset) Summary {
	if ds.Len() == 0 {
		return Summary{}
	}
	return Summary{
		TotalHospitals: ds.Len(),
		Departments:    distinct(ds, FieldDepartamento),
		Provinces:      distinct(ds, FieldProvincia),
		Districts:      distinct(ds, FieldDistrito),
	}
}

func distinct(ds *Dataset, logical string) int {
	if !ds.Has(logical) {
		return 0
	}
	seen := map[string]struct{}{}
	for i := range ds.Facilities {
		if v := ds.Text(&ds.Facilities[i], logical); v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// Departments：排序后的部门列表，供界面筛选
func Departments(ds *Dataset) []string {
	out := []string{}
	if !ds.Has(FieldDepartamento) {
		return out
	}
	seen := map[string]struct{}{}
	for i := range ds.Facilities {
		v := ds.Text(&ds.Facilities[i], FieldDepartamento)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// Count：取值与出现次数
type Count struct {
	Value string `json:"value"`
	N     int    `json:"n"`
}

// CountBy：按逻辑列计数，次数降序，同次数按取值升序
func CountBy(ds *Dataset, logical string) []Count {
	out := []Count{}
	if !ds.Has(logical) {
		return out
	}
	idx := map[string]int{}
	for i := range ds.Facilities {
		v := ds.Text(&ds.Facilities[i], logical)
		if v == "" {
			continue
		}
		if j, ok := idx[v]; ok {
			out[j].N++
			continue
		}
		idx[v] = len(out)
		out = append(out, Count{Value: v, N: 1})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N > out[j].N
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// DistrictCount：按部门/省/区分组的机构数
type DistrictCount struct {
	Departamento string `json:"departamento"`
	Provincia    string `json:"provincia"`
	Distrito     string `json:"distrito"`
	Ubigeo       string `json:"ubigeo,omitempty"`
	N            int    `json:"n_hospitales"`
}

// 文档注释：区级计数表
// 约束：三个分组列任一为空的记录不计入；UBIGEO 取该组第一个非空值；结果按分组键排序。
func CountByDistrict(ds *Dataset) []DistrictCount {
	out := []DistrictCount{}
	if !ds.Has(FieldDistrito) {
		return out
	}
	idx := map[[3]string]int{}
	for i := range ds.Facilities {
		f := &ds.Facilities[i]
		key := [3]string{ds.Text(f, FieldDepartamento), ds.Text(f, FieldProvincia), ds.Text(f, FieldDistrito)}
		if key[2] == "" || (ds.Has(FieldDepartamento) && key[0] == "") || (ds.Has(FieldProvincia) && key[1] == "") {
			continue
		}
		ubigeo := ds.Text(f, FieldUbigeo)
		if j, ok := idx[key]; ok {
			out[j].N++
			if out[j].Ubigeo == "" {
				out[j].Ubigeo = ubigeo
			}
			continue
		}
		idx[key] = len(out)
		out = append(out, DistrictCount{Departamento: key[0], Provincia: key[1], Distrito: key[2], Ubigeo: ubigeo, N: 1})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Departamento != b.Departamento {
			return a.Departamento < b.Departamento
		}
		if a.Provincia != b.Provincia {
			return a.Provincia < b.Provincia
		}
		return a.Distrito < b.Distrito
	})
	return out
}

// ByDepartment：按部门名（大小写不敏感）筛选；name 为空时返回原数据集
func ByDepartment(ds *Dataset, name string) *Dataset {
	name = strings.TrimSpace(name)
	if ds == nil || name == "" {
		return ds
	}
	fs := make([]Facility, 0)
	for i := range ds.Facilities {
		if strings.EqualFold(ds.Text(&ds.Facilities[i], FieldDepartamento), name) {
			fs = append(fs, ds.Facilities[i])
		}
	}
	return ds.derive(fs)
}
