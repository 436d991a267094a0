package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/annel0/shipgrid/internal/grid"
	"github.com/annel0/shipgrid/internal/octree"
	"github.com/annel0/shipgrid/internal/pool"
	"github.com/annel0/shipgrid/internal/shipyard"
	"github.com/annel0/shipgrid/internal/storage"
	"github.com/annel0/shipgrid/internal/vec"
	"github.com/gin-gonic/gin"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// AssetRequest запрос на регистрацию ассета
type AssetRequest struct {
	Name string `json:"name" binding:"required"`
}

// PlaceBlockRequest запрос на установку блока
type PlaceBlockRequest struct {
	Asset    string   `json:"asset" binding:"required"`
	Pos      vec.Vec3 `json:"pos"`
	Rotation uint8    `json:"rotation"`
	Color    uint8    `json:"color"`
}

// RaycastRequest запрос луча выбора
type RaycastRequest struct {
	From vec.Vec3Float `json:"from"`
	To   vec.Vec3Float `json:"to"`
}

// BlockInfo блок в ответах API
type BlockInfo struct {
	Handle   pool.Handle `json:"handle"`
	Pos      vec.Vec3    `json:"pos"`
	Asset    string      `json:"asset"`
	Type     uint16      `json:"type"`
	Rotation uint8       `json:"rotation"`
	Color    uint8       `json:"color"`
}

// RaycastInfo результат луча выбора
type RaycastInfo struct {
	Hit      bool          `json:"hit"`
	Block    *BlockInfo    `json:"block,omitempty"`
	HitPos   vec.Vec3Float `json:"hit_pos"`
	Normal   vec.Vec3      `json:"normal"`
	Adjacent vec.Vec3      `json:"adjacent"`
}

// InstanceBatch инстансы одного ассета
type InstanceBatch struct {
	Asset      string         `json:"asset"`
	AssetID    uint32         `json:"asset_id"`
	Transforms []InstanceInfo `json:"transforms"`
}

// InstanceInfo преобразование одного инстанса
type InstanceInfo struct {
	Translation mgl32.Vec3 `json:"translation"`
	Rotation    uint8      `json:"rotation"`
}

func (rs *RestServer) handleListAssets(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список ассетов",
		Data:    rs.shipyard.Registry().Names(),
	})
}

func (rs *RestServer) handleRegisterAsset(c *gin.Context) {
	var req AssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}
	asset, err := rs.shipyard.Registry().Register(req.Name)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Ассет зарегистрирован",
		Data:    asset,
	})
}

func (rs *RestServer) handleListShips(c *gin.Context) {
	ids := rs.shipyard.Ships()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Загруженные корабли",
		Data: map[string]interface{}{
			"ships": out,
			"total": len(out),
		},
	})
}

func (rs *RestServer) handleCreateShip(c *gin.Context) {
	id := rs.shipyard.CreateShip()
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Корабль создан",
		Data:    gin.H{"id": id.String()},
	})
}

func (rs *RestServer) handleShipStats(c *gin.Context) {
	id, ok := shipID(c)
	if !ok {
		return
	}
	st, err := rs.shipyard.Stats(id)
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика корабля",
		Data: gin.H{
			"blocks": st.Blocks,
			"nodes":  st.Nodes,
			"types":  st.Types,
			"depth":  st.Depth,
			"width":  st.Width,
		},
	})
}

func (rs *RestServer) handleUnloadShip(c *gin.Context) {
	id, ok := shipID(c)
	if !ok {
		return
	}
	if !rs.shipyard.Unload(id) {
		rs.fail(c, shipyard.ErrShipNotFound)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Корабль выгружен"})
}

func (rs *RestServer) handleShipNodes(c *gin.Context) {
	id, ok := shipID(c)
	if !ok {
		return
	}
	nodes, types, err := rs.shipyard.Nodes(id)
	if err != nil {
		rs.fail(c, err)
		return
	}

	names := make(map[uint16]string, len(types))
	for i, t := range types {
		if !t.Asset.IsZero() {
			names[uint16(i)] = t.Asset.Name
		}
	}
	out := make([]BlockInfo, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, BlockInfo{
			Handle:   pool.Invalid,
			Pos:      n.Pos,
			Asset:    names[n.Type],
			Type:     n.Type,
			Rotation: n.Rotation,
			Color:    n.Color,
		})
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Блоки корабля",
		Data: gin.H{
			"blocks": out,
			"total":  len(out),
		},
	})
}

func (rs *RestServer) handleGetBlock(c *gin.Context) {
	id, ok := shipID(c)
	if !ok {
		return
	}
	pos, ok := queryPos(c)
	if !ok {
		return
	}
	found, exists, err := rs.shipyard.Block(id, pos)
	if err != nil {
		rs.fail(c, err)
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Ячейка пуста"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Блок найден",
		Data: BlockInfo{
			Handle:   found.Ref.Handle,
			Pos:      found.Node.Pos,
			Asset:    found.Asset.Name,
			Type:     found.Node.Type,
			Rotation: found.Node.Rotation,
			Color:    found.Node.Color,
		},
	})
}

func (rs *RestServer) handlePlaceBlock(c *gin.Context) {
	id, ok := shipID(c)
	if !ok {
		return
	}
	var req PlaceBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}
	ref, err := rs.shipyard.PlaceBlock(c.Request.Context(), id, req.Asset, req.Pos, req.Rotation, req.Color)
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Блок установлен",
		Data:    gin.H{"handle": ref.Handle, "pos": ref.Pos},
	})
}

func (rs *RestServer) handleRemoveBlock(c *gin.Context) {
	id, ok := shipID(c)
	if !ok {
		return
	}
	pos, ok := queryPos(c)
	if !ok {
		return
	}
	removed, err := rs.shipyard.RemoveBlock(c.Request.Context(), id, pos)
	if err != nil {
		rs.fail(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Ячейка пуста"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Блок удалён"})
}

func (rs *RestServer) handleRaycast(c *gin.Context) {
	id, ok := shipID(c)
	if !ok {
		return
	}
	var req RaycastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}
	res, hit, err := rs.shipyard.Pick(id, req.From, req.To)
	if err != nil {
		rs.fail(c, err)
		return
	}

	info := RaycastInfo{Hit: hit}
	if hit {
		info.Block = &BlockInfo{
			Handle:   res.Ref.Handle,
			Pos:      res.Node.Pos,
			Asset:    res.Asset.Name,
			Type:     res.Node.Type,
			Rotation: res.Node.Rotation,
			Color:    res.Node.Color,
		}
		info.HitPos = res.HitPos
		info.Normal = res.Normal
		info.Adjacent = res.Adjacent()
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Луч выбора", Data: info})
}

func (rs *RestServer) handleInstances(c *gin.Context) {
	id, ok := shipID(c)
	if !ok {
		return
	}
	incremental, _ := strconv.ParseBool(c.DefaultQuery("incremental", "false"))
	buf, err := rs.shipyard.Instances(id, incremental)
	if err != nil {
		rs.fail(c, err)
		return
	}

	batches := make([]InstanceBatch, 0, len(buf))
	for asset, transforms := range buf {
		batch := InstanceBatch{
			Asset:      asset.Name,
			AssetID:    uint32(asset.ID),
			Transforms: make([]InstanceInfo, len(transforms)),
		}
		for i, t := range transforms {
			batch.Transforms[i] = InstanceInfo{Translation: t.Translation, Rotation: t.Rotation}
		}
		batches = append(batches, batch)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].Asset < batches[j].Asset })

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Буфер инстансов",
		Data:    gin.H{"incremental": incremental, "batches": batches},
	})
}

func (rs *RestServer) handleSave(c *gin.Context) {
	id, ok := shipID(c)
	if !ok {
		return
	}
	if err := rs.shipyard.Save(c.Request.Context(), id); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Корабль сохранён"})
}

func (rs *RestServer) handleLoad(c *gin.Context) {
	id, ok := shipID(c)
	if !ok {
		return
	}
	if err := rs.shipyard.Load(c.Request.Context(), id); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Корабль загружен"})
}

// fail переводит ошибку верфи в HTTP-ответ
func (rs *RestServer) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shipyard.ErrShipNotFound):
		status = http.StatusNotFound
	case errors.Is(err, grid.ErrInvalidAsset):
		status = http.StatusBadRequest
	case errors.Is(err, pool.ErrCapacityExceeded),
		errors.Is(err, octree.ErrDepthOverflow),
		errors.Is(err, grid.ErrTypeTableFull):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrCorruptSnapshot):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		rs.log.Error("Ошибка обработки %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, GenericResponse{Success: false, Message: err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: message})
}

func shipID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Неверный идентификатор корабля")
		return uuid.Nil, false
	}
	return id, true
}

// queryPos читает координаты ячейки из параметров x, y, z
func queryPos(c *gin.Context) (vec.Vec3, bool) {
	var coords [3]int
	for i, key := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(c.Query(key))
		if err != nil {
			badRequest(c, "Неверная координата "+key)
			return vec.Vec3{}, false
		}
		coords[i] = v
	}
	return vec.Vec3{X: coords[0], Y: coords[1], Z: coords[2]}, true
}
