package vec

import (
	"math"
	"testing"
)

func TestVec3Arithmetic(t *testing.T) {
	a := Vec3{X: 1, Y: -2, Z: 3}
	b := Vec3{X: -4, Y: 5, Z: 0}

	if got := a.Add(b); !got.Equals(Vec3{X: -3, Y: 3, Z: 3}) {
		t.Errorf("Неверная сумма: %v", got)
	}
	if got := a.Sub(b); !got.Equals(Vec3{X: 5, Y: -7, Z: 3}) {
		t.Errorf("Неверная разность: %v", got)
	}
	if got := a.Scale(2); !got.Equals(Vec3{X: 2, Y: -4, Z: 6}) {
		t.Errorf("Неверное масштабирование: %v", got)
	}
	if got := a.DistanceSq(b); got != 25+49+9 {
		t.Errorf("Неверный квадрат расстояния: %d", got)
	}
	if got := a.String(); got != "[1,-2,3]" {
		t.Errorf("Неверное строковое представление: %s", got)
	}
}

func TestVec3FloatLength(t *testing.T) {
	v := Vec3Float{X: 3, Y: 4, Z: 0}
	if math.Abs(v.Length()-5) > 1e-9 {
		t.Errorf("Ожидалась длина 5, получено %f", v.Length())
	}
	if got := v.Axis(1); got != 4 {
		t.Errorf("Ожидалась компонента Y=4, получено %f", got)
	}
	if d := (Vec3{X: 1, Y: 2, Z: 3}).ToFloat().DistanceTo(Vec3Float{X: 1, Y: 2, Z: 3}); d != 0 {
		t.Errorf("Ожидалось нулевое расстояние, получено %f", d)
	}
}
