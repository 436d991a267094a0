// Package block описывает ассеты блоков корабля и их каталог.
package block

import "fmt"

// AssetID интернированный идентификатор ассета
type AssetID uint32

// NoAsset нулевой идентификатор, не выдаётся реестром
const NoAsset AssetID = 0

// Asset ссылка на ассет блока. Два ассета равны, если равны идентификатор и имя,
// поэтому значение можно использовать как ключ карты.
type Asset struct {
	ID   AssetID
	Name string
}

// IsZero сообщает, что ассет не задан
func (a Asset) IsZero() bool {
	return a.ID == NoAsset && a.Name == ""
}

func (a Asset) String() string {
	return fmt.Sprintf("%s#%d", a.Name, a.ID)
}
