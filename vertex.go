package oit

// vertexStage transforms every shape into clip space and splits the result
// into opaque and transparent primitives. Transparent colors are
// premultiplied; opaque colors are forced to full alpha.
func vertexStage(scene Scene, cam Camera, key DepthKey) (opaque, transparent []Primitive) {
	scene.PrepareDrawing()
	vp := cam.ViewProjection()
	eye := cam.Eye()

	for _, sh := range scene.Shapes() {
		isTransparent := sh.Transparent()
		for _, tri := range sh.Triangles() {
			var prim Primitive
			for i, v := range tri.V {
				prim.Clip[i] = vp.TransformPoint(v)
				if key == DepthEye {
					prim.Key[i] = float32(v.Sub(eye).Length())
				}
			}
			if isTransparent {
				prim.Color = tri.Color.Packed()
				transparent = append(transparent, prim)
			} else {
				c := tri.Color
				c.A = 1
				prim.Color = c.Packed()
				opaque = append(opaque, prim)
			}
		}
	}
	return opaque, transparent
}
